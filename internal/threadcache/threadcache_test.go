package threadcache

import (
	"testing"

	"github.com/greeddj/imapmw/internal/thread"
)

func baseArgs() Args {
	return Args{
		AccountID: 1,
		Folder:    "INBOX",
		SortField: thread.SortReceivedDate,
		Order:     thread.Descending,
		LookAhead: 1000,
		Primary:   FolderFingerprint{Total: 500, UIDNext: 600, UIDValidity: 1},
	}
}

func TestCacheGetMissThenHit(t *testing.T) {
	c := New()
	args := baseArgs()

	if _, ok := c.Get(1, "INBOX", args); ok {
		t.Fatalf("expected miss on empty cache")
	}

	want := thread.Result{LookAhead: 1000}
	c.Put(1, "INBOX", args, want, false)

	got, ok := c.Get(1, "INBOX", args)
	if !ok {
		t.Fatalf("expected hit after Put")
	}
	if got.LookAhead != want.LookAhead {
		t.Errorf("expected LookAhead %d, got %d", want.LookAhead, got.LookAhead)
	}
}

func TestCacheKeyChangesWithFingerprint(t *testing.T) {
	a := baseArgs()
	b := baseArgs()
	b.Primary.UIDNext = 601

	if a.Key() == b.Key() {
		t.Fatalf("expected different uid_next to change the cache key")
	}
}

func TestCacheKeyFieldOrderIndependent(t *testing.T) {
	a := baseArgs()
	a.FieldNames = []string{"uid", "flags", "envelope"}
	b := baseArgs()
	b.FieldNames = []string{"envelope", "flags", "uid"}

	if a.Key() != b.Key() {
		t.Fatalf("expected field name order not to affect the cache key")
	}
}

func TestCacheableRejectsBodyAndExcessiveLookAhead(t *testing.T) {
	if Cacheable(1000, true) {
		t.Errorf("expected body-requested fetches to never be cacheable")
	}
	if Cacheable(ConversationCacheThreshold+1, false) {
		t.Errorf("expected look-ahead beyond threshold to never be cacheable")
	}
	if !Cacheable(-1, false) {
		t.Errorf("expected whole-folder look-ahead (-1) to remain cacheable")
	}
	if !Cacheable(ConversationCacheThreshold, false) {
		t.Errorf("expected look-ahead exactly at the threshold to be cacheable")
	}
}

func TestPutSkipsUncacheableRequest(t *testing.T) {
	c := New()
	args := baseArgs()
	args.LookAhead = ConversationCacheThreshold + 1

	c.Put(1, "INBOX", args, thread.Result{}, false)
	if _, ok := c.Get(1, "INBOX", args); ok {
		t.Fatalf("expected an over-threshold request not to be cached")
	}
}

func TestInvalidateFolderRemovesMatchingEntries(t *testing.T) {
	c := New()
	args := baseArgs()
	c.Put(1, "INBOX", args, thread.Result{}, false)

	c.InvalidateFolder(1, "INBOX")
	if _, ok := c.Get(1, "INBOX", args); ok {
		t.Fatalf("expected entry to be invalidated")
	}
}

func TestInvalidateFolderAlsoDropsMergeWithSentEntries(t *testing.T) {
	c := New()
	args := baseArgs()
	args.MergeWithSent = true
	args.SentFolder = "Sent"
	c.Put(1, "INBOX", args, thread.Result{}, false)

	c.InvalidateFolder(1, "Sent")
	if _, ok := c.Get(1, "INBOX", args); ok {
		t.Fatalf("expected entry referencing the sent folder to be invalidated")
	}
}

func TestInvalidateAccountDropsAllItsEntries(t *testing.T) {
	c := New()
	a1 := baseArgs()
	a2 := baseArgs()
	a2.AccountID = 2
	c.Put(1, "INBOX", a1, thread.Result{}, false)
	c.Put(2, "INBOX", a2, thread.Result{}, false)

	c.InvalidateAccount(1)
	if _, ok := c.Get(1, "INBOX", a1); ok {
		t.Fatalf("expected account 1's entry to be invalidated")
	}
	if _, ok := c.Get(2, "INBOX", a2); !ok {
		t.Fatalf("expected account 2's entry to survive")
	}
}

func TestClearDropsEverything(t *testing.T) {
	c := New()
	args := baseArgs()
	c.Put(1, "INBOX", args, thread.Result{}, false)
	c.Clear()
	if _, ok := c.Get(1, "INBOX", args); ok {
		t.Fatalf("expected Clear to drop every entry")
	}
}
