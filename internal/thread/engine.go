package thread

import (
	"fmt"

	"github.com/emersion/go-imap"

	"github.com/greeddj/imapmw/internal/fetchpipe"
)

// Strategy selects server-side THREAD vs client-side union-find.
type Strategy int

const (
	// StrategyAuto prefers server THREAD when Capabilities advertise
	// THREAD=REFERENCES or THREAD=REFS and ThreadAlgo is non-nil;
	// otherwise it falls back to client-side union-find. The engine does
	// not read the useImapThreaderIfSupported setting.
	StrategyAuto Strategy = iota
	StrategyServer
	StrategyClient
)

// Request is one GetThreadSorted/GetThreadReferences call's full
// argument set, already resolved from config.Resolver by the caller.
type Request struct {
	AccountID int64
	Folder    string

	SortField SortField
	Order     Order

	// IndexRangeStart/IndexRangeEnd are the half-open interval
	// [start, end) into the sorted conversation list (index_range).
	// IndexRangeEnd <= 0 means the caller passed no range at all, in
	// which case Max (a cap on conversation count, counted from the
	// end of the list) supplies the window instead.
	IndexRangeStart int
	IndexRangeEnd   int
	Max             int

	MergeWithSent bool
	SentFolder    string
	BodyRequested bool // illegal together with MergeWithSent

	Strategy     Strategy
	Capabilities map[string]bool

	Term       *Term // nil means no filter
	Profile    fetchpipe.Profile
	ThreadAlgo ThreadAlgoFunc
}

// ThreadAlgoFunc runs the server-side THREAD command for the resolved
// algorithm and criteria; callers supply it already bound to a live
// ThreadClient so this package stays free of client-lifecycle concerns.
type ThreadAlgoFunc func(criteria *imap.SearchCriteria) ([]*Node, error)

// Result is the Slice-then-fill triple plus the sorted conversation
// list metadata the cache layer keys on.
type Result struct {
	All   []Conversation
	First []Conversation
	Slice []Conversation
	Rest  []Conversation

	// LookAhead is the resolved look-ahead count, or -1 for "whole
	// folder", recorded so the cache can invalidate consistently.
	LookAhead int
}

// ErrIllegalBodyWithMergeWithSent is returned when a request asks for
// body content together with merge-with-sent: merging would require
// re-opening two folders' worth of body literals per conversation,
// which the engine does not support.
var ErrIllegalBodyWithMergeWithSent = fmt.Errorf("thread: body fetch combined with merge-with-sent is not supported")

// Run executes one conversation-list request: resolves look-ahead (once
// per call; it is not widened when threading leaves references
// unresolved), builds the thread forest (server or client strategy),
// flattens it, applies merge-with-sent, applies the search filter,
// sorts, and slices the result into (first, slice, rest). Messages in
// all three parts carry exactly the fields of the messages passed in;
// Run does not fill Slice (or any part) with further fields. Run itself
// issues no IMAP commands — messages and sentMessages are already
// fetched by the caller (mailmw), keeping this package's dependency on
// a live connection confined to the server-threading path threaded
// through req.ThreadAlgo.
func Run(req Request, messages []*fetchpipe.MailMessage, total int, sentMessages []*fetchpipe.MailMessage) (Result, error) {
	if req.BodyRequested && req.MergeWithSent {
		return Result{}, ErrIllegalBodyWithMergeWithSent
	}

	lookAhead := LookAhead(req.IndexRangeEnd, req.Max, total)

	byUID := make(map[uint32]*fetchpipe.MailMessage, len(messages))
	for _, m := range messages {
		byUID[m.UID] = m
	}

	roots, err := buildForest(req, messages)
	if err != nil {
		return Result{}, err
	}

	convs := Flatten(roots, byUID)

	if req.MergeWithSent {
		for _, m := range sentMessages {
			m.Folder = req.SentFolder
		}
		convs = MergeWithSent(convs, sentMessages)
	}

	if req.Term != nil {
		convs = filterConversations(*req.Term, convs)
	}

	SortConversations(convs, req.Folder, req.SortField, req.Order)

	first, slice, rest := SliceThenFill(convs, req.IndexRangeStart, req.IndexRangeEnd, req.Max)

	return Result{
		All:       convs,
		First:     first,
		Slice:     slice,
		Rest:      rest,
		LookAhead: lookAhead,
	}, nil
}

func buildForest(req Request, messages []*fetchpipe.MailMessage) ([]*Node, error) {
	serverCapable := req.Capabilities["THREAD=REFERENCES"] || req.Capabilities["THREAD=REFS"]
	useServer := req.Strategy == StrategyServer ||
		(req.Strategy == StrategyAuto && serverCapable)

	if useServer && req.ThreadAlgo != nil {
		criteria := &imap.SearchCriteria{}
		roots, err := req.ThreadAlgo(criteria)
		if err == nil {
			return roots, nil
		}
		// Server strategy failed; degrade to client-side rather than
		// fail the whole request, the same posture applied when search
		// filtering hits a mid-flight unsupported capability.
	}

	convs := BuildClientThreads(messages)
	roots := make([]*Node, 0, len(convs))
	for _, conv := range convs {
		roots = append(roots, conversationToNode(conv))
	}
	return roots, nil
}

// conversationToNode builds a flat one-level Node tree from a
// union-find conversation, since BuildClientThreads already grouped
// messages by root but does not itself produce parent/child edges
// beyond "same conversation" — reply structure within a client-built
// conversation is informational only, the server is the source of
// truth for Children nesting.
func conversationToNode(conv Conversation) *Node {
	if len(conv.Messages) == 0 {
		return &Node{}
	}
	root := &Node{UID: conv.Messages[0].UID}
	for _, m := range conv.Messages[1:] {
		root.Children = append(root.Children, &Node{UID: m.UID})
	}
	return root
}

func filterConversations(t Term, convs []Conversation) []Conversation {
	var out []Conversation
	for _, conv := range convs {
		if MatchesConversation(t, conv) {
			out = append(out, conv)
		}
	}
	return out
}

// SliceThenFill splits convs into (first, slice, rest) = (list[0:start],
// list[start:end], list[end:]). When indexRangeEnd is positive, [start,
// end) is that explicit half-open interval (indexRangeStart clamped to
// the valid range); when index_range is absent (indexRangeEnd <= 0),
// the window instead holds the last max conversations of the sorted
// list, matching
// "max: cap on conversation count when range absent". Exported so a
// cache hit can re-slice a stored full list against a request whose
// window differs from the one that produced the cached entry, since the
// cache key never includes index_range or max.
func SliceThenFill(convs []Conversation, indexRangeStart, indexRangeEnd, max int) (first, slice, rest []Conversation) {
	n := len(convs)
	start, end := indexRangeStart, indexRangeEnd
	if end <= 0 {
		end = n
		if max > 0 && max < end {
			start = end - max
		} else {
			start = 0
		}
	}
	if end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	return convs[:start], convs[start:end], convs[end:]
}
