// Package mailmw is an IMAP client middleware library: it fetches and
// threads messages into sorted conversation lists over a caller-
// supplied IMAP connection, guarded by a circuit breaker and observed
// through a metrics sink, without owning connection pooling, folder
// directory lookups, or ACL mapping itself — those stay the host
// program's responsibility, injected in as collaborators rather than
// held as package-level singletons the way the teacher's global
// Config/CacheManager/Client variables were.
package mailmw

import (
	"github.com/greeddj/imapmw/internal/breaker"
	"github.com/greeddj/imapmw/internal/collab"
	"github.com/greeddj/imapmw/internal/config"
	"github.com/greeddj/imapmw/internal/imaplog"
	"github.com/greeddj/imapmw/internal/threadcache"
)

// Runtime is the single constructed aggregate a host program builds
// once and shares across requests; it holds every collaborator the
// core depends on plus its own breaker registry and conversation
// cache.
type Runtime struct {
	Config   *config.Resolver
	Provider collab.ConnectionProvider
	Folders  collab.FolderDirectory
	ACL      collab.AclMapper
	Metrics  collab.MetricsSink
	Clock    collab.Clock

	Breaker *breaker.Registry
	Cache   *threadcache.Cache

	Log imaplog.Logger
}

// Options configures New; fields left zero get the same defaults the
// teacher's Config.validate/New would apply (no-op metrics, system
// clock); a nil Breaker stays nil, so no breaker registry is built.
type Options struct {
	Config   *config.Resolver
	Provider collab.ConnectionProvider
	Folders  collab.FolderDirectory
	ACL      collab.AclMapper
	Metrics  collab.MetricsSink
	Clock    collab.Clock
	Breaker  *breaker.Registry
	Log      imaplog.Logger
}

// New builds a Runtime from the given collaborators, applying the same
// defaults the teacher's flag-parsing New() applied to its flat Config.
// Callers construct one Runtime per process and share it across
// requests rather than touching package-level state.
func New(opts Options) *Runtime {
	if opts.Config == nil {
		opts.Config = config.NewResolver()
	}
	if opts.Metrics == nil {
		opts.Metrics = collab.NopMetricsSink{}
	}
	if opts.Clock == nil {
		opts.Clock = collab.SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = imaplog.Get()
	}
	return &Runtime{
		Config:   opts.Config,
		Provider: opts.Provider,
		Folders:  opts.Folders,
		ACL:      opts.ACL,
		Metrics:  opts.Metrics,
		Clock:    opts.Clock,
		Breaker:  opts.Breaker,
		Cache:    threadcache.New(),
		Log:      opts.Log,
	}
}

// ClearCache drops every cached conversation list for every account.
func (rt *Runtime) ClearCache() {
	rt.Cache.Clear()
}

// WatchFolder subscribes rt's cache invalidation to accountID's folder
// directory notifications, so a create/rename/move/delete anywhere in
// the account drops the affected cache entries. The returned func
// unsubscribes.
func (rt *Runtime) WatchFolder(accountID int64) (unsubscribe func()) {
	if rt.Folders == nil {
		return func() {}
	}
	return rt.Folders.Subscribe(accountID, func(folder string) {
		rt.Cache.InvalidateFolder(accountID, folder)
	})
}
