package thread

import (
	"context"

	"github.com/greeddj/imapmw/internal/collab"
	"github.com/greeddj/imapmw/internal/fetchpipe"
)

// PrefillFunc fills the given slice of conversations on conn — a
// freshly acquired, caller-owned connection distinct from the one the
// synchronous request used. A background task connects a second IMAP
// session and fills first and rest while the caller already has its
// slice. It returns the filled messages, matched back to their
// conversation by the caller via UID.
type PrefillFunc func(ctx context.Context, conn collab.Conn, folder string, uids []uint32, profile fetchpipe.Profile) ([]*fetchpipe.MailMessage, error)

// PrefillResult is delivered once the background prefill completes (or
// fails/cancels); the caller inserts FullList into the cache under the
// args-hash it already computed for the request.
type PrefillResult struct {
	FullList []Conversation
	Err      error
}

// Prefill runs fill once over the UIDs of `first` and `rest` together on a
// provider-acquired connection distinct from the caller's, merges the
// results back into the already-sorted conversation list, and reports
// the outcome on the returned channel. The caller cancels ctx to stop
// the background work early (e.g. the process is shutting down); no
// result is delivered in that case beyond the context's own error.
//
// There is no coroutine runtime here: this is a plain goroutine plus
// context cancellation, mirroring the teacher's own done-channel
// goroutine pattern in internal/client/client.go (FetchMessages et al.)
// rather than any task/worker-pool abstraction.
func Prefill(ctx context.Context, provider collab.ConnectionProvider, accountID int64, folder string, sorted []Conversation, first, rest []Conversation, profile fetchpipe.Profile, fill PrefillFunc) <-chan PrefillResult {
	out := make(chan PrefillResult, 1)
	go func() {
		defer close(out)

		conn, release, err := provider.Acquire(ctx, accountID)
		if err != nil {
			out <- PrefillResult{Err: err}
			return
		}
		defer release()

		uids := collectUIDs(first, rest)
		if len(uids) == 0 {
			out <- PrefillResult{FullList: sorted}
			return
		}

		filled, err := fill(ctx, conn, folder, uids, profile)
		if err != nil {
			out <- PrefillResult{Err: err}
			return
		}

		byUID := make(map[uint32]*fetchpipe.MailMessage, len(filled))
		for _, m := range filled {
			byUID[m.UID] = m
		}
		mergeFilledFields(sorted, byUID)

		select {
		case <-ctx.Done():
			out <- PrefillResult{Err: ctx.Err()}
		default:
			out <- PrefillResult{FullList: sorted}
		}
	}()
	return out
}

func collectUIDs(groups ...[]Conversation) []uint32 {
	var uids []uint32
	for _, convs := range groups {
		for _, conv := range convs {
			for _, m := range conv.Messages {
				uids = append(uids, m.UID)
			}
		}
	}
	return uids
}

// mergeFilledFields copies every field the prefill fetch populated
// from filled into the corresponding in-place message, rather than
// replacing the MailMessage pointer (which would orphan the
// ThreadLevel already assigned during flattening).
func mergeFilledFields(sorted []Conversation, byUID map[uint32]*fetchpipe.MailMessage) {
	for _, conv := range sorted {
		for _, m := range conv.Messages {
			full, ok := byUID[m.UID]
			if !ok {
				continue
			}
			*m = mergedMessage(*m, *full)
		}
	}
}

// mergedMessage keeps base's identity/threading fields and overlays
// every other field from fetched.
func mergedMessage(base, fetched fetchpipe.MailMessage) fetchpipe.MailMessage {
	fetched.ThreadLevel = base.ThreadLevel
	fetched.SequenceNumber = base.SequenceNumber
	return fetched
}
