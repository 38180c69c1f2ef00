package thread

import "github.com/greeddj/imapmw/internal/fetchpipe"

// unionFind is a standard union-find over string keys (Message-IDs):
// each message contributes edges to every ID in its References chain
// and its In-Reply-To, merging them into one component — no pack file
// implements References-threading, so the data structure itself is
// plain textbook union-find rather than adapted from an example.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// path compression
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// References is set by the caller from the raw References header;
// fetchpipe.MailMessage only carries InReplyTo/MessageID as typed
// fields (the References header has no dedicated slice field since
// FETCH pipeline parsing only needs the single In-Reply-To value), so
// threading reads the raw header multimap instead.
func references(m *fetchpipe.MailMessage) []string {
	return m.Headers.All("references")
}

// BuildClientThreads groups messages into connected components by
// Message-ID/In-Reply-To/References, each component becoming one
// Conversation with no tree structure, since flat References-threading
// carries no parent/child relationship beyond connectivity.
// BuildClientThreads sets no thread_level; when Run flattens a
// client-built conversation, its first message gets level 0 and every
// other message level 1.
//
// A message that cites itself, or a reference cycle among several
// messages, never causes non-termination: union-find only ever merges
// disjoint sets, so a cycle just collapses to the same component it
// would form without the cycle.
func BuildClientThreads(messages []*fetchpipe.MailMessage) []Conversation {
	uf := newUnionFind()
	byMessageID := make(map[string]*fetchpipe.MailMessage, len(messages))

	for _, m := range messages {
		if m.MessageID == "" {
			continue
		}
		uf.find(m.MessageID)
		byMessageID[m.MessageID] = m
	}
	for _, m := range messages {
		if m.MessageID == "" {
			continue
		}
		if m.InReplyTo != "" {
			uf.union(m.MessageID, m.InReplyTo)
		}
		for _, ref := range references(m) {
			uf.union(m.MessageID, ref)
		}
	}

	groups := make(map[string][]*fetchpipe.MailMessage)
	var order []string
	for _, m := range messages {
		if m.MessageID == "" {
			// A message with no Message-ID can't be threaded; it forms
			// its own singleton conversation keyed by its own identity.
			key := "seq:" + m.MailID
			groups[key] = append(groups[key], m)
			order = append(order, key)
			continue
		}
		root := uf.find(m.MessageID)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], m)
	}

	convs := make([]Conversation, 0, len(order))
	seen := make(map[string]struct{}, len(order))
	for _, key := range order {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		convs = append(convs, Conversation{Messages: groups[key]})
	}
	return convs
}
