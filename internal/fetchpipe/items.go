package fetchpipe

import (
	"bufio"
	"io"
	"mime"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
)

// Item is a tagged variant of one parsed FETCH response field. ApplyItems
// is the single parsing function that matches on Kind and mutates the
// in-progress message; the compiler does not check that its switch is
// exhaustive, and an Item whose Kind has no case is ignored.
type Item struct {
	Kind FieldIntent

	Raw       *imap.Message // UID, X-REAL-UID, X-MAILBOX, INTERNALDATE, FLAGS, SIZE, ENVELOPE
	HeaderRaw io.Reader     // HEADERS
	BodyRaw   io.Reader     // BODY
	Snippet   string        // SNIPPET/PREVIEW
	Caps      map[string]bool
}

// ApplyItems mutates msg with every recognized item, in a fixed order:
// BODYSTRUCTURE is applied after FLAGS so a FLAGS-derived
// has_attachment answer always wins over the BODYSTRUCTURE-inferred
// one.
func ApplyItems(msg *MailMessage, items []Item) {
	var bodystructure *imap.BodyStructure
	for _, it := range items {
		switch it.Kind {
		case FieldUID:
			applyUIDItem(msg, it.Raw)
		case FieldOriginalUID:
			applyOriginalUID(msg, it.Raw)
		case FieldOriginalFolder:
			applyOriginalFolder(msg, it.Raw)
		case FieldInternalDate:
			applyInternalDate(msg, it.Raw)
		case FieldSize:
			applySize(msg, it.Raw)
		case FieldFlags:
			applyFlags(msg, it.Raw, it.Caps)
		case FieldEnvelope:
			applyEnvelope(msg, it.Raw)
		case FieldHeaders:
			applyHeaders(msg, it.HeaderRaw)
		case FieldBody:
			applyBody(msg, it.BodyRaw)
		case FieldSnippet:
			applySnippet(msg, it.Snippet)
		case FieldBodyStructure:
			if it.Raw != nil {
				bodystructure = it.Raw.BodyStructure
			}
		}
	}
	if bodystructure != nil {
		applyBodyStructure(msg, bodystructure)
	}
}

func applyUIDItem(msg *MailMessage, raw *imap.Message) {
	if raw == nil {
		return
	}
	msg.applyUID(raw.Uid)
}

func applyOriginalUID(msg *MailMessage, raw *imap.Message) {
	if raw == nil {
		return
	}
	if uid, ok := rawItemUint32(raw, itemXRealUID); ok {
		msg.OriginalUID = uid
	}
}

func applyOriginalFolder(msg *MailMessage, raw *imap.Message) {
	if raw == nil {
		return
	}
	if name, ok := rawItemString(raw, itemXMailbox); ok {
		msg.OriginalFolder = name
	}
}

// rawItemUint32 and rawItemString read a non-standard FETCH item go-imap
// has no typed field for out of the generic Items map every imap.Message
// carries alongside its typed fields (X-REAL-UID, X-MAILBOX); the wire
// decoder hands back a plain Go type per IMAP token kind, so both widen
// over whichever one a given server used.
func rawItemUint32(raw *imap.Message, key imap.FetchItem) (uint32, bool) {
	v, ok := raw.Items[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint64:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case string:
		parsed, err := strconv.ParseUint(n, 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(parsed), true
	default:
		return 0, false
	}
}

func rawItemString(raw *imap.Message, key imap.FetchItem) (string, bool) {
	v, ok := raw.Items[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func applyInternalDate(msg *MailMessage, raw *imap.Message) {
	if raw == nil {
		return
	}
	msg.ReceivedDate = raw.InternalDate
}

func applySize(msg *MailMessage, raw *imap.Message) {
	if raw == nil {
		return
	}
	msg.Size = raw.Size
}

// applyFlags classifies each system/user flag into the Flags bitset,
// color label, or UserFlags set. "$cl_N" color-label tokens: the last
// one seen wins, matching how a message carries at most one label.
func applyFlags(msg *MailMessage, raw *imap.Message, caps map[string]bool) {
	if raw == nil {
		return
	}
	for _, f := range raw.Flags {
		switch f {
		case imap.SeenFlag:
			msg.Flags |= FlagSeen
		case imap.AnsweredFlag:
			msg.Flags |= FlagAnswered
		case imap.FlaggedFlag:
			msg.Flags |= FlagFlagged
		case imap.DeletedFlag:
			msg.Flags |= FlagDeleted
		case imap.DraftFlag:
			msg.Flags |= FlagDraft
		case imap.RecentFlag:
			msg.Flags |= FlagRecent
		case "$Forwarded":
			msg.Flags |= FlagForwarded
		case "$MDNSent":
			msg.Flags |= FlagReadAck
		default:
			if n, ok := colorLabelNum(f); ok {
				msg.ColorLabel = n
			} else if strings.HasPrefix(f, "$") || strings.HasPrefix(f, "\\") {
				// recognized namespace, unrecognized flag: ignore
			} else {
				msg.UserFlags[f] = struct{}{}
			}
		}
	}
	if caps["ATTACHMENT-MARKER"] && len(raw.Flags) > 0 {
		msg.HasAttachment = attachmentFromFlags(raw.Flags, msg.HasAttachment)
	}
}

func colorLabelNum(flag string) (int, bool) {
	const prefix = "$cl_"
	if !strings.HasPrefix(flag, prefix) {
		return 0, false
	}
	rest := flag[len(prefix):]
	n := 0
	if rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// attachmentFromFlags honors an explicit "$HasAttachment"/"$HasNoAttachment"
// marker flag when the server sets one, taking precedence over any prior
// value. A flag set with neither marker leaves the current value untouched.
func attachmentFromFlags(flags []string, current Attachment) Attachment {
	for _, f := range flags {
		switch f {
		case "$HasAttachment":
			return AttachmentYes
		case "$HasNoAttachment":
			return AttachmentNo
		}
	}
	return current
}

func applyEnvelope(msg *MailMessage, raw *imap.Message) {
	if raw == nil || raw.Envelope == nil {
		return
	}
	env := raw.Envelope

	// Subject/Date follow "first wins": only set from the envelope if a
	// HEADERS item hasn't already populated them from the raw header
	// block. itemsFor (parse.go) hands ENVELOPE to ApplyItems before
	// HEADERS, so the envelope normally wins; both setters check for an
	// existing value, so the rule holds in either order.
	if msg.Subject == "" {
		msg.Subject = decodeWord(env.Subject)
	}
	if msg.SentDate.IsZero() {
		msg.SentDate = env.Date
	}
	if msg.MessageID == "" {
		msg.MessageID = env.MessageId
	}
	if msg.InReplyTo == "" {
		msg.InReplyTo = env.InReplyTo
	}

	if len(msg.From) == 0 {
		msg.From = parsedAddressesFrom(env.From)
	}
	if len(msg.To) == 0 {
		msg.To = parsedAddressesFrom(env.To)
	}
	if len(msg.Cc) == 0 {
		msg.Cc = parsedAddressesFrom(env.Cc)
	}
	if len(msg.Bcc) == 0 {
		msg.Bcc = parsedAddressesFrom(env.Bcc)
	}
	if len(msg.ReplyTo) == 0 {
		msg.ReplyTo = parsedAddressesFrom(env.ReplyTo)
	}
}

var mimeWordDecoder = &mime.WordDecoder{}

func decodeWord(s string) string {
	decoded, err := mimeWordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// applyHeaders parses a BODY.PEEK[HEADER] / BODY.PEEK[HEADER.FIELDS
// (...)] literal into msg.Headers, and applies the known-header typed
// setters (From/To/Cc/Bcc/Reply-To/Disposition-Notification-To/
// Subject/Date/Importance/X-Priority), each following "first wins"
// against whatever ENVELOPE already set. Invalid address
// values are skipped without logging; this package has no logger.
func applyHeaders(msg *MailMessage, r io.Reader) {
	if r == nil {
		return
	}
	tp := textproto.NewReader(bufio.NewReader(r))
	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return
	}

	var importance, xPriority string
	for name, values := range header {
		for _, v := range values {
			msg.Headers.Add(name, v)
		}
		if len(values) == 0 {
			continue
		}
		first := values[0]
		switch strings.ToLower(name) {
		case "subject":
			if msg.Subject == "" {
				msg.Subject = decodeWord(first)
			}
		case "date":
			if msg.SentDate.IsZero() {
				if t, err := mail.ParseDate(first); err == nil {
					msg.SentDate = t
				}
			}
		case "message-id":
			if msg.MessageID == "" {
				msg.MessageID = first
			}
		case "in-reply-to":
			if msg.InReplyTo == "" {
				msg.InReplyTo = first
			}
		case "content-type":
			if msg.ContentType == "" {
				msg.ContentType = first
			}
		case "from":
			if len(msg.From) == 0 {
				msg.From = parseAddressList(first)
			}
		case "to":
			if len(msg.To) == 0 {
				msg.To = parseAddressList(first)
			}
		case "cc":
			if len(msg.Cc) == 0 {
				msg.Cc = parseAddressList(first)
			}
		case "bcc":
			if len(msg.Bcc) == 0 {
				msg.Bcc = parseAddressList(first)
			}
		case "reply-to":
			if len(msg.ReplyTo) == 0 {
				msg.ReplyTo = parseAddressList(first)
			}
		case "disposition-notification-to":
			if len(msg.DispositionNotificationTo) == 0 {
				msg.DispositionNotificationTo = parseAddressList(first)
			}
		case "importance":
			importance = first
		case "x-priority":
			xPriority = first
		}
	}

	if msg.Priority == "" {
		if importance != "" {
			msg.Priority = strings.ToLower(strings.TrimSpace(importance))
		} else if xPriority != "" {
			msg.Priority = strings.ToLower(strings.TrimSpace(xPriority))
		}
	}
}

// parseAddressList converts an RFC 5322 header value into our Address
// slice, skipping the whole value (rather than a partial parse) on a
// malformed list.
func parseAddressList(raw string) []Address {
	parsed, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil
	}
	out := make([]Address, 0, len(parsed))
	for _, a := range parsed {
		out = append(out, addressFromMail(a))
	}
	return out
}

func addressFromMail(a *mail.Address) Address {
	mailbox, host := a.Address, ""
	if i := strings.LastIndexByte(a.Address, '@'); i >= 0 {
		mailbox, host = a.Address[:i], a.Address[i+1:]
	}
	return Address{PersonalName: a.Name, MailboxName: mailbox, HostName: host}
}

func applyBody(msg *MailMessage, r io.Reader) {
	if r == nil {
		return
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return
	}
	if msg.ContentType == "" {
		msg.ContentType = sniffContentType(body)
	}
}

func sniffContentType(body []byte) string {
	tp := textproto.NewReader(bufio.NewReader(strings.NewReader(string(body))))
	header, err := tp.ReadMIMEHeader()
	if err != nil || len(header) == 0 {
		return ""
	}
	return header.Get("Content-Type")
}

func applySnippet(msg *MailMessage, snippet string) {
	msg.TextPreview = snippet
}

// applyBodyStructure walks the MIME tree looking for a disposition of
// "attachment" (or a filename parameter that implies one), setting
// HasAttachment only if FLAGS hasn't already answered the question —
// FLAGS wins over BODYSTRUCTURE inference when both are requested.
func applyBodyStructure(msg *MailMessage, bs *imap.BodyStructure) {
	if bs == nil {
		return
	}
	if msg.ContentType == "" && bs.MIMEType != "" {
		msg.ContentType = strings.ToLower(bs.MIMEType) + "/" + strings.ToLower(bs.MIMESubType)
	}
	if msg.HasAttachment == AttachmentUnknown {
		if hasAttachmentPart(bs) {
			msg.HasAttachment = AttachmentYes
		} else {
			msg.HasAttachment = AttachmentNo
		}
	}
}

func hasAttachmentPart(part *imap.BodyStructure) bool {
	if part == nil {
		return false
	}
	if strings.EqualFold(part.Disposition, "attachment") {
		return true
	}
	for name, val := range part.DispositionParams {
		if strings.EqualFold(name, "filename") && val != "" {
			return true
		}
	}
	for _, child := range part.Parts {
		if hasAttachmentPart(child) {
			return true
		}
	}
	return false
}
