package thread

import (
	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
)

// ThreadClient is the sortthread surface this package needs, confirmed
// against other_examples/1dfaf33e_vdavid-vmail's
// sortthread.NewThreadClient(c).UidThread(algo, criteria) usage.
type ThreadClient interface {
	UidThread(algo sortthread.ThreadAlgorithm, criteria *imap.SearchCriteria) ([]*sortthread.Thread, error)
}

// NewThreadClient wraps a live go-imap client.Client for the server
// THREAD path.
func NewThreadClient(c *client.Client) ThreadClient {
	return sortthread.NewThreadClient(c)
}

// ServerAlgorithm picks REFS over REFERENCES when the server advertises
// it, falling back to REFERENCES otherwise.
func ServerAlgorithm(capabilities map[string]bool) sortthread.ThreadAlgorithm {
	if capabilities["THREAD=REFS"] {
		return sortthread.ThreadAlgorithm("REFS")
	}
	return sortthread.References
}

// RunServerThread issues UID THREAD and converts the sortthread.Thread
// forest into this package's Node shape.
func RunServerThread(tc ThreadClient, algo sortthread.ThreadAlgorithm, criteria *imap.SearchCriteria) ([]*Node, error) {
	threads, err := tc.UidThread(algo, criteria)
	if err != nil {
		return nil, err
	}
	roots := make([]*Node, 0, len(threads))
	for _, t := range threads {
		roots = append(roots, nodeFromSortThread(t))
	}
	return roots, nil
}

func nodeFromSortThread(t *sortthread.Thread) *Node {
	if t == nil {
		return nil
	}
	n := &Node{UID: t.Id}
	for _, child := range t.Children {
		n.Children = append(n.Children, nodeFromSortThread(child))
	}
	return n
}
