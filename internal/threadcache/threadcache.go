// Package threadcache caches computed conversation lists keyed by an
// args-hash plus a folder fingerprint, generalizing the teacher's
// on-disk ServerCache/MailboxCache (internal/cache/cache.go) from a
// disk cache of message metadata into an in-memory cache of
// already-sorted thread.Result values.
package threadcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/greeddj/imapmw/internal/thread"
)

// ConversationCacheThreshold is the never-cache ceiling: a request
// whose look-ahead exceeds this many messages, or that asked for body
// content, is never cached regardless of hit/miss.
const ConversationCacheThreshold = 10000

// FolderFingerprint is the per-folder state the cache keys its entries
// on, mirroring the teacher's MailboxCache.UIDNext/MessageCount pair
// extended with HighestModSeq for CONDSTORE-aware invalidation.
// HighestModSeq is -1 when the folder doesn't advertise CONDSTORE; the
// fingerprint still forms a valid key in that case, it just doesn't
// change unless Total or UIDNext does.
type FolderFingerprint struct {
	Total         uint32
	UIDNext       uint32
	HighestModSeq int64
	UIDValidity   uint32
}

// Args is every input that determines a cached result's identity: sort
// field, order, look-ahead, merge-with-sent flag, field set, header
// names, and per-folder fingerprints.
type Args struct {
	AccountID int64
	Folder    string

	SortField thread.SortField
	Order     thread.Order
	LookAhead int

	MergeWithSent bool
	SentFolder    string

	FieldNames  []string // fetch profile intents, stringified by the caller
	HeaderNames []string

	Primary FolderFingerprint
	Sent    FolderFingerprint // zero value when MergeWithSent is false
}

// Key returns the deterministic digest identifying this Args, built the
// same way the teacher hashes its cache filename
// (generateCacheFileName: sha256 over a colon-joined descriptor).
func (a Args) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:%d:%d:%d:%t:%s",
		a.AccountID, a.Folder, a.SortField, a.Order, a.LookAhead, a.MergeWithSent, a.SentFolder)

	names := append([]string(nil), a.FieldNames...)
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(h, ":f=%s", n)
	}
	headers := append([]string(nil), a.HeaderNames...)
	sort.Strings(headers)
	for _, n := range headers {
		fmt.Fprintf(h, ":h=%s", n)
	}

	fmt.Fprintf(h, ":p=%d,%d,%d,%d", a.Primary.Total, a.Primary.UIDNext, a.Primary.HighestModSeq, a.Primary.UIDValidity)
	if a.MergeWithSent {
		fmt.Fprintf(h, ":s=%d,%d,%d,%d", a.Sent.Total, a.Sent.UIDNext, a.Sent.HighestModSeq, a.Sent.UIDValidity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cacheable reports whether a request with this look-ahead and
// body-fetch status is eligible for caching at all.
func Cacheable(lookAhead int, bodyRequested bool) bool {
	if bodyRequested {
		return false
	}
	if lookAhead < 0 {
		return true // -1 means "whole folder", not "unbounded huge fetch"
	}
	return lookAhead <= ConversationCacheThreshold
}

type entry struct {
	result thread.Result
	args   Args
}

// Cache holds computed thread.Result values behind per-(account,
// folder) lock striping, mirroring the teacher's per-folder
// folderLocks map (internal/client/client.go) generalized from a
// create/rename lock to a read/write cache lock. The entries map
// itself is guarded by one shared lock, which every folder's
// operations take briefly.
type Cache struct {
	stripesMu sync.Mutex
	stripes   map[string]*sync.RWMutex

	entriesMu sync.RWMutex
	entries   map[string]entry
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{
		stripes: make(map[string]*sync.RWMutex),
		entries: make(map[string]entry),
	}
}

func stripeKey(accountID int64, folder string) string {
	return strconv.FormatInt(accountID, 10) + ":" + folder
}

func (c *Cache) stripe(accountID int64, folder string) *sync.RWMutex {
	key := stripeKey(accountID, folder)
	c.stripesMu.Lock()
	defer c.stripesMu.Unlock()
	lock, ok := c.stripes[key]
	if !ok {
		lock = &sync.RWMutex{}
		c.stripes[key] = lock
	}
	return lock
}

// Get returns the cached result for args, if present and not stale.
// Staleness beyond the key mismatch itself (a UIDVALIDITY or uid_next
// rollback) is handled by the key already encoding those fields: a
// changed fingerprint simply misses rather than needing a separate
// explicit check.
func (c *Cache) Get(accountID int64, folder string, args Args) (thread.Result, bool) {
	lock := c.stripe(accountID, folder)
	lock.RLock()
	defer lock.RUnlock()

	c.entriesMu.RLock()
	defer c.entriesMu.RUnlock()
	e, ok := c.entries[args.Key()]
	if !ok {
		return thread.Result{}, false
	}
	return e.result, true
}

// Put installs result under args's key, unless the request is not
// cacheable per Cacheable.
func (c *Cache) Put(accountID int64, folder string, args Args, result thread.Result, bodyRequested bool) {
	if !Cacheable(args.LookAhead, bodyRequested) {
		return
	}
	lock := c.stripe(accountID, folder)
	lock.Lock()
	defer lock.Unlock()

	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	c.entries[args.Key()] = entry{result: result, args: args}
}

// InvalidateFolder drops every cached entry belonging to (accountID,
// folder), whether as the primary folder or as the merge-with-sent
// folder — called from a collab.FolderDirectory.Subscribe callback or
// an explicit clearCache request.
func (c *Cache) InvalidateFolder(accountID int64, folder string) {
	lock := c.stripe(accountID, folder)
	lock.Lock()
	defer lock.Unlock()

	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	for key, e := range c.entries {
		if e.args.AccountID != accountID {
			continue
		}
		if e.args.Folder == folder || (e.args.MergeWithSent && e.args.SentFolder == folder) {
			delete(c.entries, key)
		}
	}
}

// InvalidateAccount drops every cached entry for an account, used when
// an ACL change affects the account's rights broadly enough that
// per-folder invalidation can't be targeted precisely.
func (c *Cache) InvalidateAccount(accountID int64) {
	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	for key, e := range c.entries {
		if e.args.AccountID == accountID {
			delete(c.entries, key)
		}
	}
}

// Clear drops every cached entry, the explicit clearCache operation.
func (c *Cache) Clear() {
	c.entriesMu.Lock()
	defer c.entriesMu.Unlock()
	c.entries = make(map[string]entry)
}
