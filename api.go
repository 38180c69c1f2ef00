package mailmw

import (
	"context"

	"github.com/emersion/go-imap"
	"golang.org/x/sync/errgroup"

	"github.com/greeddj/imapmw/internal/fetchpipe"
	"github.com/greeddj/imapmw/internal/imaperr"
	"github.com/greeddj/imapmw/internal/splitarg"
	"github.com/greeddj/imapmw/internal/thread"
	"github.com/greeddj/imapmw/internal/threadcache"
)

// Conn is the connection surface the API-surface functions need: the
// fetchpipe executor contract plus mailbox selection, matching exactly
// what internal/imapclient.Session already exposes.
type Conn interface {
	fetchpipe.Client
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
}

// FetchAll fetches every message in folder, ascending or descending by
// sequence number, materializing the given fetch profile fields.
func (rt *Runtime) FetchAll(conn Conn, accountID int64, folder string, ascending bool, profile fetchpipe.Profile) ([]*fetchpipe.MailMessage, error) {
	mbox, err := conn.Select(folder, true)
	if err != nil {
		return nil, imaperr.New(imaperr.KindFolderNotFound, err).WithFolder(folder)
	}

	cmd := fetchpipe.Command{
		Kind:   fetchpipe.BySequenceNumber,
		SeqSet: fetchpipe.BuildSeqSet("", true, mbox.Messages),
		Items:  fetchpipe.BuildItems(profile),
	}
	messages, err := fetchpipe.Run(conn, folder, accountID, cmd, profile)
	if err != nil {
		return nil, err
	}
	if !ascending {
		reverseMessages(messages)
	}
	return messages, nil
}

func reverseMessages(messages []*fetchpipe.MailMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// Fetch fetches exactly the given ids (sequence numbers or UIDs,
// chunked through the argument splitter) and returns them keyed by
// mail_id.
func (rt *Runtime) Fetch(conn Conn, accountID int64, folder string, profile fetchpipe.Profile, ids []int64, idKind fetchpipe.IDKind) (map[string]*fetchpipe.MailMessage, error) {
	if _, err := conn.Select(folder, true); err != nil {
		return nil, imaperr.New(imaperr.KindFolderNotFound, err).WithFolder(folder)
	}

	splitKind := splitarg.SequenceNumbers
	if idKind == fetchpipe.ByUID {
		splitKind = splitarg.UIDs
	}
	chunks := splitarg.Split(ids, true, -1, splitKind)

	result := make(map[string]*fetchpipe.MailMessage, len(ids))
	for _, chunk := range chunks {
		cmd := fetchpipe.Command{
			Kind:   idKind,
			SeqSet: fetchpipe.BuildSeqSet(chunk, false, 0),
			Items:  fetchpipe.BuildItems(profile),
		}
		messages, err := fetchpipe.Run(conn, folder, accountID, cmd, profile)
		if err != nil {
			return nil, err
		}
		for _, m := range messages {
			result[m.MailID] = m
		}
	}
	return result, nil
}

// metadataProfile is the fixed field set the conversation engine needs
// to build and sort conversations: UID, INTERNALDATE, FLAGS, and the
// envelope/header fields reply-graph construction reads from.
func metadataProfile() fetchpipe.Profile {
	return fetchpipe.NewProfile(
		fetchpipe.FieldUID,
		fetchpipe.FieldInternalDate,
		fetchpipe.FieldFlags,
		fetchpipe.FieldEnvelope,
		fetchpipe.FieldHeaders,
	)
}

var fieldIntentNames = map[fetchpipe.FieldIntent]string{
	fetchpipe.FieldUID:            "uid",
	fetchpipe.FieldInternalDate:   "internaldate",
	fetchpipe.FieldFlags:          "flags",
	fetchpipe.FieldSize:           "size",
	fetchpipe.FieldEnvelope:       "envelope",
	fetchpipe.FieldBodyStructure:  "bodystructure",
	fetchpipe.FieldHeaders:        "headers",
	fetchpipe.FieldBody:           "body",
	fetchpipe.FieldSnippet:        "snippet",
	fetchpipe.FieldOriginalUID:    "x-real-uid",
	fetchpipe.FieldOriginalFolder: "x-mailbox",
}

// fieldNames stringifies a profile's requested intents for the cache
// key (threadcache.Args.FieldNames), since the cache lives outside
// fetchpipe and can't hash the intent map directly.
func fieldNames(p fetchpipe.Profile) []string {
	names := make([]string, 0, len(p.Fields))
	for intent, want := range p.Fields {
		if want {
			names = append(names, fieldIntentNames[intent])
		}
	}
	return names
}

func fingerprintOf(mbox *imap.MailboxStatus) threadcache.FolderFingerprint {
	fp := threadcache.FolderFingerprint{
		Total:       mbox.Messages,
		UIDNext:     mbox.UidNext,
		UIDValidity: mbox.UidValidity,
	}
	fp.HighestModSeq = -1
	return fp
}

// GetThreadSorted produces a sorted, sliced list of conversations over
// folder, optionally merged with the account's sent folder and
// optionally filtered by term. sentConn/sentFolder are only consulted
// when includeSent is true.
func (rt *Runtime) GetThreadSorted(ctx context.Context, conn Conn, accountID int64, folder string, includeSent bool, sentConn Conn, sentFolder string, indexRangeStart, indexRangeEnd, max int, sortField thread.SortField, order thread.Order, profile fetchpipe.Profile, term *thread.Term, capabilities map[string]bool, threadAlgo thread.ThreadAlgoFunc) ([][]*fetchpipe.MailMessage, error) {
	if profile.Want(fetchpipe.FieldBody) && includeSent {
		return nil, thread.ErrIllegalBodyWithMergeWithSent
	}

	mbox, err := conn.Select(folder, true)
	if err != nil {
		return nil, imaperr.New(imaperr.KindFolderNotFound, err).WithFolder(folder)
	}

	var primaryMessages, sentMessages []*fetchpipe.MailMessage
	var sentFP threadcache.FolderFingerprint

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ferr error
		primaryMessages, ferr = rt.FetchAll(conn, accountID, folder, true, metadataProfile())
		return ferr
	})
	if includeSent && sentFolder != "" && sentFolder != folder {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			sentBox, serr := sentConn.Select(sentFolder, true)
			if serr != nil {
				return imaperr.New(imaperr.KindFolderNotFound, serr).WithFolder(sentFolder)
			}
			sentFP = fingerprintOf(sentBox)
			var ferr error
			sentMessages, ferr = rt.FetchAll(sentConn, accountID, sentFolder, true, metadataProfile())
			return ferr
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	args := threadcache.Args{
		AccountID:     accountID,
		Folder:        folder,
		SortField:     sortField,
		Order:         order,
		MergeWithSent: includeSent && sentFolder != "" && sentFolder != folder,
		SentFolder:    sentFolder,
		FieldNames:    fieldNames(profile),
		HeaderNames:   profile.HeaderNames,
		Primary:       fingerprintOf(mbox),
		Sent:          sentFP,
	}

	req := thread.Request{
		AccountID:       accountID,
		Folder:          folder,
		SortField:       sortField,
		Order:           order,
		IndexRangeStart: indexRangeStart,
		IndexRangeEnd:   indexRangeEnd,
		Max:             max,
		MergeWithSent:   args.MergeWithSent,
		SentFolder:      sentFolder,
		BodyRequested:   profile.Want(fetchpipe.FieldBody),
		Strategy:        thread.StrategyAuto,
		Capabilities:    capabilities,
		Term:            term,
		Profile:         profile,
		ThreadAlgo:      threadAlgo,
	}

	args.LookAhead = thread.LookAhead(indexRangeEnd, max, len(primaryMessages))
	// args never encodes index_range/max, only the look-ahead bound they
	// produce, so a cache hit's stored full list has to be re-sliced
	// against this call's window rather than reusing its stored Slice,
	// which was cut for whatever window was in effect when it was
	// computed and put in the cache.
	if cached, ok := rt.Cache.Get(accountID, folder, args); ok {
		_, slice, _ := thread.SliceThenFill(cached.All, indexRangeStart, indexRangeEnd, max)
		return conversationsToMailMessages(slice), nil
	}

	result, err := thread.Run(req, primaryMessages, len(primaryMessages), sentMessages)
	if err != nil {
		return nil, err
	}

	rt.Cache.Put(accountID, folder, args, result, req.BodyRequested)

	return conversationsToMailMessages(result.Slice), nil
}

func conversationsToMailMessages(convs []thread.Conversation) [][]*fetchpipe.MailMessage {
	out := make([][]*fetchpipe.MailMessage, len(convs))
	for i, c := range convs {
		out[i] = c.Messages
	}
	return out
}

// MailThread is one conversation in its unflattened summary form: the
// messages belonging to the thread plus its primary-folder root,
// returned by GetThreadReferences.
type MailThread struct {
	Root     *fetchpipe.MailMessage
	Messages []*fetchpipe.MailMessage
}

// GetThreadReferences returns up to size conversations built purely
// from the reply graph (no merge-with-sent), sorted and optionally
// filtered, in their tree-summary form rather than a flattened message
// list.
func (rt *Runtime) GetThreadReferences(ctx context.Context, conn Conn, accountID int64, folder string, size int, sortField thread.SortField, order thread.Order, term *thread.Term, profile fetchpipe.Profile, capabilities map[string]bool, threadAlgo thread.ThreadAlgoFunc) ([]MailThread, error) {
	mbox, err := conn.Select(folder, true)
	if err != nil {
		return nil, imaperr.New(imaperr.KindFolderNotFound, err).WithFolder(folder)
	}

	messages, err := rt.FetchAll(conn, accountID, folder, true, metadataProfile())
	if err != nil {
		return nil, err
	}

	req := thread.Request{
		AccountID:    accountID,
		Folder:       folder,
		SortField:    sortField,
		Order:        order,
		Max:          size,
		Strategy:     thread.StrategyAuto,
		Capabilities: capabilities,
		Term:         term,
		Profile:      profile,
		ThreadAlgo:   threadAlgo,
	}

	result, err := thread.Run(req, messages, int(mbox.Messages), nil)
	if err != nil {
		return nil, err
	}

	convs := result.Slice
	if size > 0 && size < len(convs) {
		convs = convs[:size]
	}

	out := make([]MailThread, len(convs))
	for i, c := range convs {
		root := c.Root(folder)
		for _, m := range c.Messages {
			if m.ThreadLevel == 0 && m.Folder == folder {
				root = m
				break
			}
		}
		out[i] = MailThread{Root: root, Messages: c.Messages}
	}
	return out, nil
}

// ServerThreadAlgo binds a live thread.ThreadClient and the server's
// advertised capabilities into a thread.ThreadAlgoFunc the two
// GetThread* functions can pass through, keeping the client-lifecycle
// concern (which ThreadClient belongs to which Conn) out of this
// package's request-building code.
func ServerThreadAlgo(tc thread.ThreadClient, capabilities map[string]bool) thread.ThreadAlgoFunc {
	algo := thread.ServerAlgorithm(capabilities)
	return func(criteria *imap.SearchCriteria) ([]*thread.Node, error) {
		return thread.RunServerThread(tc, algo, criteria)
	}
}
