package thread

import (
	"strings"
	"time"

	"github.com/emersion/go-imap"

	"github.com/greeddj/imapmw/internal/fetchpipe"
)

// Term is the closed sum over search term kinds. Exactly one of the
// typed fields is meaningful for a given Kind; Children holds operands
// for And/Or, Operand for Not.
type Term struct {
	Kind TermKind

	Children []Term
	Operand  *Term

	HeaderName  string
	HeaderValue string

	Flag    string
	Present bool // for FlagMatch: true = must have flag, false = must lack it

	BodySubstring string

	SizeCompare SizeOp
	SizeValue   uint32

	DateCompare DateOp
	DateValue   time.Time

	AddressField string // "from", "to", "cc", "bcc"
	AddressValue string
}

type TermKind int

const (
	TermAnd TermKind = iota
	TermOr
	TermNot
	TermHeaderMatch
	TermFlagMatch
	TermBodyMatch
	TermSizeCompare
	TermSentDate
	TermReceivedDate
	TermAddressMatch
)

type SizeOp int

const (
	SizeLarger SizeOp = iota
	SizeSmaller
)

type DateOp int

const (
	DateBefore DateOp = iota
	DateOn
	DateSince
)

// hasWildcard reports whether a value uses glob-style wildcards the
// IMAP SEARCH command doesn't understand, forcing client-side
// filtering for this term.
func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// NeedsClientSide reports whether any part of the term tree cannot be
// expressed as a server-side imap.SearchCriteria: Not (go-imap's
// SearchCriteria has no negation) or a wildcarded value.
func NeedsClientSide(t Term) bool {
	switch t.Kind {
	case TermNot:
		return true
	case TermAnd, TermOr:
		for _, c := range t.Children {
			if NeedsClientSide(c) {
				return true
			}
		}
		return false
	case TermHeaderMatch:
		return hasWildcard(t.HeaderValue)
	case TermBodyMatch:
		return hasWildcard(t.BodySubstring)
	case TermAddressMatch:
		return hasWildcard(t.AddressValue)
	default:
		return false
	}
}

// ToSearchCriteria builds the server-side imap.SearchCriteria for a
// term tree with no Not and no wildcards; callers must check
// NeedsClientSide first (the conversion here is best-effort and simply
// omits anything it can't express, rather than guessing).
func ToSearchCriteria(t Term) *imap.SearchCriteria {
	c := &imap.SearchCriteria{Header: make(map[string][]string)}
	applyCriteria(t, c)
	return c
}

func applyCriteria(t Term, c *imap.SearchCriteria) {
	switch t.Kind {
	case TermAnd:
		for _, child := range t.Children {
			applyCriteria(child, c)
		}
	case TermOr:
		if len(t.Children) == 2 {
			a, b := &imap.SearchCriteria{Header: make(map[string][]string)}, &imap.SearchCriteria{Header: make(map[string][]string)}
			applyCriteria(t.Children[0], a)
			applyCriteria(t.Children[1], b)
			c.Or = append(c.Or, [2]*imap.SearchCriteria{a, b})
		}
	case TermHeaderMatch:
		c.Header[t.HeaderName] = append(c.Header[t.HeaderName], t.HeaderValue)
	case TermFlagMatch:
		if t.Present {
			c.WithFlags = append(c.WithFlags, t.Flag)
		} else {
			c.WithoutFlags = append(c.WithoutFlags, t.Flag)
		}
	case TermBodyMatch:
		c.Body = append(c.Body, t.BodySubstring)
	case TermSizeCompare:
		if t.SizeCompare == SizeLarger {
			c.Larger = t.SizeValue
		} else {
			c.Smaller = t.SizeValue
		}
	case TermSentDate:
		applyDate(t.DateCompare, t.DateValue, &c.SentSince, &c.SentBefore)
	case TermReceivedDate:
		applyDate(t.DateCompare, t.DateValue, &c.Since, &c.Before)
	case TermAddressMatch:
		c.Header[addressHeaderName(t.AddressField)] = append(c.Header[addressHeaderName(t.AddressField)], t.AddressValue)
	}
}

func applyDate(op DateOp, v time.Time, since, before *time.Time) {
	switch op {
	case DateSince:
		*since = v
	case DateBefore:
		*before = v
	case DateOn:
		*since = v
		*before = v.Add(24 * time.Hour)
	}
}

func addressHeaderName(field string) string {
	switch strings.ToLower(field) {
	case "to":
		return "To"
	case "cc":
		return "Cc"
	case "bcc":
		return "Bcc"
	default:
		return "From"
	}
}

// Matches evaluates a term tree against one message, for client-side
// filtering.
func Matches(t Term, m *fetchpipe.MailMessage) bool {
	switch t.Kind {
	case TermAnd:
		for _, c := range t.Children {
			if !Matches(c, m) {
				return false
			}
		}
		return true
	case TermOr:
		for _, c := range t.Children {
			if Matches(c, m) {
				return true
			}
		}
		return false
	case TermNot:
		return t.Operand == nil || !Matches(*t.Operand, m)
	case TermHeaderMatch:
		for _, v := range m.Headers.All(t.HeaderName) {
			if globMatch(t.HeaderValue, v) {
				return true
			}
		}
		return false
	case TermFlagMatch:
		return hasSystemOrUserFlag(m, t.Flag) == t.Present
	case TermBodyMatch:
		return globMatch(t.BodySubstring, m.TextPreview)
	case TermSizeCompare:
		if t.SizeCompare == SizeLarger {
			return m.Size > t.SizeValue
		}
		return m.Size < t.SizeValue
	case TermSentDate:
		return dateMatches(t.DateCompare, t.DateValue, m.SentDate)
	case TermReceivedDate:
		return dateMatches(t.DateCompare, t.DateValue, m.ReceivedDate)
	case TermAddressMatch:
		return addressesMatch(addressesFor(m, t.AddressField), t.AddressValue)
	default:
		return false
	}
}

// MatchesConversation reports whether any message in conv satisfies t;
// filtering is applied conversation-wise, so a conversation matches if
// any one of its messages does.
func MatchesConversation(t Term, conv Conversation) bool {
	for _, m := range conv.Messages {
		if Matches(t, m) {
			return true
		}
	}
	return false
}

func dateMatches(op DateOp, v, actual time.Time) bool {
	switch op {
	case DateBefore:
		return actual.Before(v)
	case DateSince:
		return !actual.Before(v)
	default: // DateOn
		return actual.Year() == v.Year() && actual.YearDay() == v.YearDay()
	}
}

func hasSystemOrUserFlag(m *fetchpipe.MailMessage, flag string) bool {
	switch flag {
	case imap.SeenFlag:
		return m.Flags&fetchpipe.FlagSeen != 0
	case imap.AnsweredFlag:
		return m.Flags&fetchpipe.FlagAnswered != 0
	case imap.FlaggedFlag:
		return m.Flags&fetchpipe.FlagFlagged != 0
	case imap.DeletedFlag:
		return m.Flags&fetchpipe.FlagDeleted != 0
	case imap.DraftFlag:
		return m.Flags&fetchpipe.FlagDraft != 0
	default:
		_, ok := m.UserFlags[flag]
		return ok
	}
}

func addressesFor(m *fetchpipe.MailMessage, field string) []fetchpipe.Address {
	switch strings.ToLower(field) {
	case "to":
		return m.To
	case "cc":
		return m.Cc
	case "bcc":
		return m.Bcc
	default:
		return m.From
	}
}

func addressesMatch(addrs []fetchpipe.Address, want string) bool {
	for _, a := range addrs {
		if globMatch(want, a.String()) {
			return true
		}
	}
	return false
}

// globMatch implements the simple "*"/"?" wildcard matching the
// client-side degradation path needs; a pattern with no wildcard
// characters is treated as a case-insensitive substring match, which
// is the IMAP SEARCH semantics this path stands in for.
func globMatch(pattern, value string) bool {
	if !hasWildcard(pattern) {
		return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
	}
	return globMatchRec(strings.ToLower(pattern), strings.ToLower(value))
}

func globMatchRec(pattern, value string) bool {
	if pattern == "" {
		return value == ""
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(value); i++ {
			if globMatchRec(pattern[1:], value[i:]) {
				return true
			}
		}
		return false
	case '?':
		if value == "" {
			return false
		}
		return globMatchRec(pattern[1:], value[1:])
	default:
		if value == "" || value[0] != pattern[0] {
			return false
		}
		return globMatchRec(pattern[1:], value[1:])
	}
}
