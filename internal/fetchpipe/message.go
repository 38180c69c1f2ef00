// Package fetchpipe builds FETCH/UID FETCH commands from a fetch
// profile, issues them through a Client (parse.go), and parses the untagged
// responses into MailMessage records via a per-field handler dispatch.
// The command shape and channel-based response draining follow the teacher's
// FetchMessages/FetchMessageIDs (internal/client/client.go); the
// per-field mapping table and handler dispatch are new, since the
// teacher only ever requests a fixed Envelope+RFC822 pair.
package fetchpipe

import (
	"time"

	"github.com/emersion/go-imap"
)

// Attachment is a tri-state has-attachment flag.
type Attachment int

const (
	AttachmentUnknown Attachment = iota
	AttachmentYes
	AttachmentNo
)

// SystemFlag is one bit of the recognized system-flag bitset.
type SystemFlag uint16

const (
	FlagSeen SystemFlag = 1 << iota
	FlagAnswered
	FlagFlagged
	FlagDeleted
	FlagDraft
	FlagRecent
	FlagForwarded // derived from the $Forwarded user flag
	FlagReadAck   // derived from the $MDNSent user flag
)

// Address mirrors an RFC 5322 mailbox in parsed ENVELOPE form.
type Address struct {
	PersonalName string
	MailboxName  string
	HostName     string
}

// String renders "Personal Name <mailbox@host>", matching
// imap.Envelope's own address text shape closely enough for logging.
func (a Address) String() string {
	if a.MailboxName == "" {
		return ""
	}
	addr := a.MailboxName
	if a.HostName != "" {
		addr += "@" + a.HostName
	}
	if a.PersonalName != "" {
		return a.PersonalName + " <" + addr + ">"
	}
	return addr
}

// HeaderValues is a case-insensitive, insertion-order-preserving
// multimap from header name to every value seen for that name,
// preserving duplicates in the order they arrived.
type HeaderValues struct {
	order []string
	vals  map[string][]string
}

// Add appends value under name, preserving insertion order across
// distinct header names and across repeats of the same name.
func (h *HeaderValues) Add(name, value string) {
	key := canonHeader(name)
	if h.vals == nil {
		h.vals = make(map[string][]string)
	}
	if _, seen := h.vals[key]; !seen {
		h.order = append(h.order, key)
	}
	h.vals[key] = append(h.vals[key], value)
}

// Get returns the first value recorded for name, if any.
func (h *HeaderValues) Get(name string) (string, bool) {
	vs, ok := h.vals[canonHeader(name)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// All returns every value recorded for name, in insertion order.
func (h *HeaderValues) All(name string) []string {
	return h.vals[canonHeader(name)]
}

// Names returns every distinct header name seen, in first-insertion order.
func (h *HeaderValues) Names() []string {
	return append([]string(nil), h.order...)
}

func canonHeader(name string) string {
	// Canonicalize case only; unlike net/textproto.CanonicalMIMEHeaderKey
	// this never rejects or mangles non-ASCII header names.
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// MailMessage is the mutable aggregate populated by item handlers
// during FETCH parsing and read-only to callers thereafter.
type MailMessage struct {
	MailID         string
	UID            uint32
	Folder         string
	SequenceNumber uint32

	Flags     SystemFlag
	ColorLabel int // 0 = none; otherwise the N in "$cl_N"
	UserFlags  map[string]struct{}

	ReceivedDate time.Time // INTERNALDATE
	SentDate     time.Time // envelope Date

	Size uint32

	From, To, Cc, Bcc, ReplyTo []Address

	Subject      string
	InReplyTo    string
	MessageID    string
	Headers      HeaderValues
	ContentType  string
	HasAttachment Attachment
	TextPreview  string

	// Priority holds the winning value of the Importance/X-Priority
	// tie-break, lowercased, or "" if neither header was present.
	Priority string

	DispositionNotificationTo []Address

	OriginalUID    uint32
	OriginalFolder string

	ThreadLevel int
	AccountID   int64
}

// NewMailMessage seeds a message with its addressing keys; item
// handlers fill in the rest during parsing.
func NewMailMessage(folder string, sequenceNumber uint32, accountID int64) *MailMessage {
	return &MailMessage{
		Folder:         folder,
		SequenceNumber: sequenceNumber,
		AccountID:      accountID,
		UserFlags:      make(map[string]struct{}),
	}
}

// applyUID sets both uid and mail_id together, preserving the
// mail_id == str(uid) invariant.
func (m *MailMessage) applyUID(uid uint32) {
	m.UID = uid
	m.MailID = uitoa(uid)
}

func uitoa(u uint32) string {
	if u == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// parsedAddressesFrom converts go-imap's []*imap.Address into our Address slice.
func parsedAddressesFrom(in []*imap.Address) []Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]Address, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		out = append(out, Address{
			PersonalName: a.PersonalName,
			MailboxName:  a.MailboxName,
			HostName:     a.HostName,
		})
	}
	return out
}
