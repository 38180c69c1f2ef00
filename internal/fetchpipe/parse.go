package fetchpipe

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
)

// Client is the narrow surface Run needs from a connection: issuing a
// FETCH/UID FETCH and a STATUS re-check, both wrapped by the executor
// chain (breaker + metrics) the way imapclient.Session.Execute already
// does for Select (internal/imapclient/imapclient.go).
type Client interface {
	Execute(cmdName string, cmd func() error) error
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Status(folder string, items []imap.StatusItem) (*imap.MailboxStatus, error)
}

// invalidMessageSetPattern is the case-insensitive substring a BAD
// response's text is checked against to decide whether the command
// merely referenced a stale message set (→ empty result) or genuinely
// failed.
const invalidMessageSetPattern = "invalid message"

// Run issues cmd against conn, parses every untagged FETCH response
// into a MailMessage, and applies a partial-failure model: a
// malformed item drops only the one message it belongs to; a BAD
// response is fatal unless it matches the invalid-message-set pattern,
// in which case an empty result is returned instead of an error; a NO
// response triggers a STATUS re-check and is only fatal if the folder
// still has messages in it.
func Run(conn Client, folder string, accountID int64, cmd Command, profile Profile) ([]*MailMessage, error) {
	ch := make(chan *imap.Message, 32)
	var fetchErr error

	err := conn.Execute(cmd.Name(), func() error {
		done := make(chan error, 1)
		go func() {
			if cmd.Kind == ByUID {
				done <- conn.UidFetch(cmd.SeqSet, cmd.Items, ch)
			} else {
				done <- conn.Fetch(cmd.SeqSet, cmd.Items, ch)
			}
		}()
		fetchErr = <-done
		return fetchErr
	})

	messages := drain(ch, folder, accountID, profile)

	if err == nil {
		return messages, nil
	}
	return handleFetchFailure(conn, folder, err)
}

// drain reads every untagged response off ch, converting each into a
// MailMessage. A response that fails to convert (caught via recover,
// since go-imap decoding can leave partially-typed items that panic
// on a bad type assertion deep in a handler) is skipped; the rest of
// the batch continues.
func drain(ch chan *imap.Message, folder string, accountID int64, profile Profile) []*MailMessage {
	var out []*MailMessage
	for raw := range ch {
		msg, ok := convert(raw, folder, accountID, profile)
		if ok {
			out = append(out, msg)
		}
	}
	return out
}

func convert(raw *imap.Message, folder string, accountID int64, profile Profile) (msg *MailMessage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	msg = NewMailMessage(folder, raw.SeqNum, accountID)
	ApplyItems(msg, itemsFor(raw, profile))
	return msg, true
}

// itemsFor builds the Item list handed to ApplyItems from one raw
// go-imap message and the profile that produced the request, pulling
// the HEADERS/BODY literals out of raw.Body by the same BodySectionName
// keys BuildItems constructed.
func itemsFor(raw *imap.Message, profile Profile) []Item {
	var items []Item
	if profile.Want(FieldUID) {
		items = append(items, Item{Kind: FieldUID, Raw: raw})
	}
	if profile.Want(FieldOriginalUID) {
		items = append(items, Item{Kind: FieldOriginalUID, Raw: raw})
	}
	if profile.Want(FieldOriginalFolder) {
		items = append(items, Item{Kind: FieldOriginalFolder, Raw: raw})
	}
	if profile.Want(FieldInternalDate) {
		items = append(items, Item{Kind: FieldInternalDate, Raw: raw})
	}
	if profile.Want(FieldSize) {
		items = append(items, Item{Kind: FieldSize, Raw: raw})
	}
	if profile.Want(FieldFlags) {
		items = append(items, Item{Kind: FieldFlags, Raw: raw, Caps: profile.Capabilities})
	}
	if profile.Want(FieldEnvelope) {
		items = append(items, Item{Kind: FieldEnvelope, Raw: raw})
	}
	if profile.Want(FieldHeaders) {
		if lit := bodyLiteral(raw, headerSection(profile)); lit != nil {
			items = append(items, Item{Kind: FieldHeaders, HeaderRaw: lit})
		}
	}
	if profile.Want(FieldBody) {
		if lit := bodyLiteral(raw, &imap.BodySectionName{Peek: true}); lit != nil {
			items = append(items, Item{Kind: FieldBody, BodyRaw: lit})
		}
	}
	if profile.Want(FieldBodyStructure) {
		items = append(items, Item{Kind: FieldBodyStructure, Raw: raw})
	}
	if profile.Want(FieldSnippet) {
		items = append(items, Item{Kind: FieldSnippet, Snippet: snippetText(raw, profile)})
	}
	return items
}

func headerSection(p Profile) *imap.BodySectionName {
	section := &imap.BodySectionName{Peek: true}
	if len(p.HeaderNames) > 0 {
		section.BodyPartName = imap.BodyPartName{Specifier: imap.PartSpecifierHeader, Fields: p.HeaderNames}
	} else {
		section.BodyPartName = imap.BodyPartName{Specifier: imap.PartSpecifierHeader}
	}
	return section
}

func bodyLiteral(raw *imap.Message, section *imap.BodySectionName) imap.Literal {
	return raw.GetBody(section)
}

// snippetText reads the non-standard SNIPPET/PREVIEW keyword back out of
// raw.Items under the exact FetchItem key BuildItems requested for this
// profile (snippetItem picks the key from negotiated capabilities, so the
// request and the read must agree on it). go-imap v1 has no typed field
// for it; a server that supports the extension returns either a literal
// or a plain string depending on whether it sent the text as a literal
// or a quoted string.
func snippetText(raw *imap.Message, p Profile) string {
	if raw == nil {
		return ""
	}
	v, ok := raw.Items[snippetItem(p)]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case imap.Literal:
		b, err := io.ReadAll(s)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// handleFetchFailure implements the BAD/NO branch of the failure model.
func handleFetchFailure(conn Client, folder string, err error) ([]*MailMessage, error) {
	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "BAD "), strings.HasPrefix(msg, "BAD"):
		if strings.Contains(strings.ToLower(err.Error()), invalidMessageSetPattern) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetchpipe: command failed: %w", err)
	case strings.Contains(msg, " NO "), strings.HasPrefix(msg, "NO "):
		var status *imap.MailboxStatus
		serr := conn.Execute("STATUS", func() error {
			var err error
			status, err = conn.Status(folder, []imap.StatusItem{imap.StatusMessages})
			return err
		})
		if serr == nil && status != nil && status.Messages == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("fetchpipe: command failed: %w", err)
	default:
		return nil, err
	}
}
