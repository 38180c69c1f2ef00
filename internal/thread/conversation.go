// Package thread builds sorted, sliced conversation lists over an IMAP
// folder, via either the server's THREAD=REFERENCES extension (walked
// through github.com/emersion/go-imap-sortthread, grounded on
// meszmate-imap-go's THREAD extension node shape, a reference pack file
// under _examples/other_examples) or a client-side union-find over
// Message-ID/In-Reply-To/References headers when the server lacks the
// capability. Both strategies produce the same Node tree shape so a
// single flattening walk assigns thread_level regardless of strategy.
package thread

import (
	"sort"
	"time"

	"github.com/greeddj/imapmw/internal/fetchpipe"
)

// Node is the shared tree shape both threading strategies produce
// before flattening, mirroring the sortthread.Thread{Id, Children}
// node (itself grounded on the meszmate-imap-go THREAD extension's
// Thread{Num, Children}).
type Node struct {
	UID      uint32
	Children []*Node
}

// Conversation is a flattened, level-annotated list of messages
// belonging to one connected thread component. Messages appear in
// depth-first tree order; ThreadLevel on each message is its depth
// from the conversation root (root is 0).
type Conversation struct {
	Messages []*fetchpipe.MailMessage
}

// Flatten walks roots in order, resolving each UID through byUID, and
// assigns ThreadLevel to every message it visits (root is 0). A UID
// with no matching message (the server threaded a message this fetch
// didn't retrieve) is skipped; its children are still walked, at the
// level below the skipped node.
func Flatten(roots []*Node, byUID map[uint32]*fetchpipe.MailMessage) []Conversation {
	conversations := make([]Conversation, 0, len(roots))
	for _, root := range roots {
		var msgs []*fetchpipe.MailMessage
		walk(root, 0, byUID, &msgs)
		if len(msgs) > 0 {
			conversations = append(conversations, Conversation{Messages: msgs})
		}
	}
	return conversations
}

func walk(n *Node, level int, byUID map[uint32]*fetchpipe.MailMessage, out *[]*fetchpipe.MailMessage) {
	if n == nil {
		return
	}
	if msg, ok := byUID[n.UID]; ok {
		msg.ThreadLevel = level
		*out = append(*out, msg)
	}
	for _, child := range n.Children {
		walk(child, level+1, byUID, out)
	}
}

// Root returns a conversation's comparison anchor: the first message
// whose folder equals primaryFolder, or Messages[0] if none matches, so
// a sent-folder root doesn't misrepresent a conversation's primary-side
// identity.
func (c Conversation) Root(primaryFolder string) *fetchpipe.MailMessage {
	for _, m := range c.Messages {
		if m.Folder == primaryFolder {
			return m
		}
	}
	if len(c.Messages) > 0 {
		return c.Messages[0]
	}
	return nil
}

// SortField selects the comparator column for conversation ordering.
type SortField int

const (
	SortReceivedDate SortField = iota
	SortSentDate
	SortSize
	SortSubject
)

// Order selects ascending or descending comparison direction.
type Order int

const (
	Ascending Order = iota
	Descending
)

// SortConversations reorders conversations: each one is internally
// sorted by received-date descending first (so Flatten's tree order
// doesn't leak through), then the list itself is sorted by (field,
// order), with the RECEIVED_DATE tie-break (In-Reply-To
// presence, then sent-date) when two roots compare equal.
func SortConversations(convs []Conversation, primaryFolder string, field SortField, order Order) {
	for i := range convs {
		sort.SliceStable(convs[i].Messages, func(a, b int) bool {
			return convs[i].Messages[a].ReceivedDate.After(convs[i].Messages[b].ReceivedDate)
		})
	}

	sort.SliceStable(convs, func(i, j int) bool {
		ri, rj := convs[i].Root(primaryFolder), convs[j].Root(primaryFolder)
		if ri == nil || rj == nil {
			return ri != nil
		}
		cmp := compareRoots(ri, rj, field)
		if cmp == 0 && field == SortReceivedDate {
			cmp = tieBreak(ri, rj)
			if (ri.InReplyTo != "") != (rj.InReplyTo != "") {
				return cmp < 0
			}
		}
		if order == Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareRoots(a, b *fetchpipe.MailMessage, field SortField) int {
	switch field {
	case SortSentDate:
		return compareTime(a.SentDate, b.SentDate)
	case SortSize:
		return compareUint32(a.Size, b.Size)
	case SortSubject:
		return compareString(a.Subject, b.Subject)
	default:
		return compareTime(a.ReceivedDate, b.ReceivedDate)
	}
}

// tieBreak orders two equal-received-date roots by In-Reply-To
// presence (messages carrying one lose, i.e. sort after a bare root in
// either order), then by sent-date (which follows the requested order).
func tieBreak(a, b *fetchpipe.MailMessage) int {
	aHas, bHas := a.InReplyTo != "", b.InReplyTo != ""
	if aHas != bHas {
		if aHas {
			return 1
		}
		return -1
	}
	return compareTime(a.SentDate, b.SentDate)
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func compareUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
