package fetchpipe

import "github.com/emersion/go-imap"

// FieldIntent is one requestable field intent from a fetch profile.
type FieldIntent int

const (
	FieldUID FieldIntent = iota
	FieldInternalDate
	FieldFlags
	FieldSize
	FieldEnvelope
	FieldBodyStructure
	FieldHeaders
	FieldBody
	FieldSnippet
	FieldOriginalUID    // X-REAL-UID
	FieldOriginalFolder // X-MAILBOX
)

// Profile is a set of requested field intents plus the extra
// parameters HEADERS and SNIPPET need.
type Profile struct {
	Fields map[FieldIntent]bool

	// HeaderNames restricts the HEADERS fetch to these field names; empty
	// means "fetch the whole header block" (RFC822.HEADER / BODY.PEEK[HEADER]).
	HeaderNames []string

	// SnippetFuzzy is carried with the profile but not read by
	// BuildItems; the snippet item is chosen from Capabilities alone.
	SnippetFuzzy bool

	// Capabilities gates the non-standard snippet item this profile may
	// emit: "SNIPPET=FUZZY", "PREVIEW=FUZZY", "PREVIEW". The headers item
	// is always BODY.PEEK[HEADER...], whatever the capabilities; the
	// plain-IMAP4 RFC822.HEADER.LINES form is not emitted.
	Capabilities map[string]bool
}

// Want reports whether intent is requested.
func (p Profile) Want(intent FieldIntent) bool {
	return p.Fields != nil && p.Fields[intent]
}

// NewProfile builds a Profile requesting exactly the given intents.
func NewProfile(intents ...FieldIntent) Profile {
	p := Profile{Fields: make(map[FieldIntent]bool, len(intents))}
	for _, i := range intents {
		p.Fields[i] = true
	}
	return p
}

// itemXRealUID and itemXMailbox are non-standard FETCH items go-imap
// v1 doesn't model; they're requested and parsed as raw FetchItems.
const (
	itemXRealUID imap.FetchItem = "X-REAL-UID"
	itemXMailbox imap.FetchItem = "X-MAILBOX"
)

// BuildItems translates p into the IMAP FETCH item list.
func BuildItems(p Profile) []imap.FetchItem {
	var items []imap.FetchItem

	if p.Want(FieldUID) {
		items = append(items, imap.FetchUid)
	}
	if p.Want(FieldOriginalUID) {
		items = append(items, itemXRealUID)
	}
	if p.Want(FieldOriginalFolder) {
		items = append(items, itemXMailbox)
	}
	if p.Want(FieldInternalDate) {
		items = append(items, imap.FetchInternalDate)
	}
	if p.Want(FieldSize) {
		items = append(items, imap.FetchRFC822Size)
	}
	if p.Want(FieldFlags) {
		items = append(items, imap.FetchFlags)
	}
	if p.Want(FieldEnvelope) {
		items = append(items, imap.FetchEnvelope)
	}

	if p.Want(FieldHeaders) {
		section := &imap.BodySectionName{Peek: true}
		if len(p.HeaderNames) > 0 {
			section.BodyPartName = imap.BodyPartName{
				Specifier: imap.PartSpecifierHeader,
				Fields:    p.HeaderNames,
			}
		} else {
			section.BodyPartName = imap.BodyPartName{Specifier: imap.PartSpecifierHeader}
		}
		items = append(items, section.FetchItem())
	}

	if p.Want(FieldBody) {
		section := &imap.BodySectionName{Peek: true}
		items = append(items, section.FetchItem())
	}

	// BODYSTRUCTURE follows the header/body items (only the snippet
	// item comes after it); response parsing (ApplyItems in items.go)
	// processes it after FLAGS regardless of item order in the request.
	if p.Want(FieldBodyStructure) {
		items = append(items, imap.FetchBodyStructure)
	}

	if p.Want(FieldSnippet) {
		items = append(items, snippetItem(p))
	}

	return items
}

// snippetItem picks SNIPPET (FUZZY) / PREVIEW (FUZZY) / PREVIEW
// depending on negotiated capability.
func snippetItem(p Profile) imap.FetchItem {
	switch {
	case p.Capabilities["SNIPPET=FUZZY"]:
		return imap.FetchItem("SNIPPET (FUZZY)")
	case p.Capabilities["PREVIEW=FUZZY"]:
		return imap.FetchItem("PREVIEW (FUZZY)")
	case p.Capabilities["PREVIEW"]:
		return imap.FetchItem("PREVIEW")
	default:
		return imap.FetchItem("SNIPPET (FUZZY)")
	}
}
