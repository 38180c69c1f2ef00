package fetchpipe

import "github.com/emersion/go-imap"

// IDKind selects whether a command addresses messages by sequence
// number or by UID.
type IDKind int

const (
	BySequenceNumber IDKind = iota
	ByUID
)

// BuildSeqSet constructs the sequence-set argument for a command.
// When wholeFolder is set, the range 1:messageCount (or "1" for a
// single-message folder) is used. Otherwise chunk is parsed as a
// sequence set; callers produce budget-bounded chunks via
// internal/splitarg and call BuildSeqSet once per chunk. A chunk that
// does not parse yields an empty set.
func BuildSeqSet(chunk string, wholeFolder bool, messageCount uint32) *imap.SeqSet {
	seqset := new(imap.SeqSet)
	switch {
	case wholeFolder && messageCount == 1:
		seqset.AddNum(1)
	case wholeFolder:
		seqset.AddRange(1, messageCount)
	default:
		// ParseSeqSet reads the exact token syntax splitarg emits; the
		// parsed set is added to the empty set via AddSet.
		parsed, err := imap.ParseSeqSet(chunk)
		if err == nil {
			seqset.AddSet(parsed)
		}
	}
	return seqset
}

// Command describes one FETCH/UID FETCH invocation ready to execute.
type Command struct {
	Kind  IDKind
	SeqSet *imap.SeqSet
	Items []imap.FetchItem
}

// Name returns the bare command keyword used for breaker/metrics
// classification ("FETCH" or "UID FETCH").
func (c Command) Name() string {
	if c.Kind == ByUID {
		return "UID FETCH"
	}
	return "FETCH"
}
