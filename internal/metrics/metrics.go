// Package metrics records a Prometheus histogram of command latency
// tagged by command, status, and host. The promauto wiring is grounded
// on fenilsonani-email-server/internal/metrics/metrics.go; unlike that
// package's process-global vars (fine for a single long-running
// server), this middleware is embedded into arbitrary host programs,
// so the vectors are built against a caller-supplied
// prometheus.Registerer instead of the default global one.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/greeddj/imapmw/internal/collab"
)

// DefaultWhitelist is the command classification whitelist used unless
// metrics.commandWhitelist overrides it: anything not in the set
// collapses to "other" so an adversarial or exotic IMAP extension
// command can't blow up cardinality.
var DefaultWhitelist = map[string]struct{}{
	"select": {}, "examine": {}, "create": {}, "delete": {}, "rename": {},
	"subscribe": {}, "unsubscribe": {}, "list": {}, "lsub": {}, "status": {},
	"append": {}, "expunge": {}, "close": {}, "search": {}, "fetch": {},
	"store": {}, "copy": {}, "sort": {},
}

// ParseWhitelist builds a whitelist set from a comma-separated
// metrics.commandWhitelist config value, lowercasing and trimming each
// entry. An empty csv yields an empty (non-nil) set; callers fall back
// to DefaultWhitelist themselves when that's what an absent override
// should mean.
func ParseWhitelist(csv string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}

// Status is the small, fixed set of command outcomes tagged on the histogram.
type Status string

const (
	StatusOK      Status = "ok"
	StatusNo      Status = "no"
	StatusBad     Status = "bad"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// HostTag classifies a connection host for the "host" label, collapsing
// to a constant value unless the relevant grouping option is enabled.
type HostTag struct {
	GroupByPrimaryHosts     bool
	GroupByPrimaryEndpoints bool
	GroupByExternalHosts    bool
	MeasureExternalAccounts bool
}

// Sink implements collab.MetricsSink, recording per-command latency
// observations into a Prometheus HistogramVec.
type Sink struct {
	hostTag         HostTag
	whitelist       map[string]struct{}
	groupByCommands bool
	duration        *prometheus.HistogramVec
}

var _ collab.MetricsSink = (*Sink)(nil)

// New builds a Sink registering its collectors against reg. Passing
// prometheus.DefaultRegisterer matches the teacher's process-global
// convention; a fresh *prometheus.Registry is preferred in tests and
// for embedding multiple independent middleware instances. A nil
// whitelist falls back to DefaultWhitelist.
func New(reg prometheus.Registerer, tag HostTag, whitelist map[string]struct{}, groupByCommands bool) *Sink {
	if whitelist == nil {
		whitelist = DefaultWhitelist
	}
	return &Sink{
		hostTag:         tag,
		whitelist:       whitelist,
		groupByCommands: groupByCommands,
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imapmw_command_duration_seconds",
			Help:    "Latency of IMAP commands issued by the middleware, by command/status/host",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"cmd", "status", "host"}),
	}
}

// ObserveCommand implements collab.MetricsSink. It assumes host belongs
// to the primary account; ObserveCommandFor takes the collab.ConnKind
// explicitly for primary/external tagging. The imapclient session
// wrapper calls ObserveCommand, so its observations are tagged primary.
func (s *Sink) ObserveCommand(cmd, status, host string, latency time.Duration) {
	s.ObserveCommandFor(collab.KindPrimary, host, cmd, status, latency)
}

// Classify strips a leading "UID " prefix, takes the next word,
// lowercases it, and returns it if it's in the sink's whitelist, else
// "other". When groupByCommands is disabled, every command collapses to
// "all" regardless of whitelist membership.
func (s *Sink) Classify(cmd string) string {
	if !s.groupByCommands {
		return "all"
	}
	c := strings.ToLower(strings.TrimSpace(cmd))
	c = strings.TrimPrefix(c, "uid ")
	if idx := strings.IndexByte(c, ' '); idx >= 0 {
		c = c[:idx]
	}
	if _, ok := s.whitelist[c]; ok {
		return c
	}
	return "other"
}

func hostOnly(endpoint string) string {
	if idx := strings.LastIndexByte(endpoint, ':'); idx >= 0 {
		return endpoint[:idx]
	}
	return endpoint
}

// ObserveCommandFor is the ConnKind-aware variant for callers that
// already know whether a connection is primary or external.
func (s *Sink) ObserveCommandFor(kind collab.ConnKind, host, cmd, status string, latency time.Duration) {
	label := "primary"
	switch {
	case kind == collab.KindExternal && !s.hostTag.MeasureExternalAccounts:
		label = "unmeasured"
	case kind == collab.KindExternal && s.hostTag.GroupByExternalHosts:
		label = host
	case kind == collab.KindExternal:
		label = "external"
	case s.hostTag.GroupByPrimaryEndpoints:
		label = host
	case s.hostTag.GroupByPrimaryHosts:
		label = hostOnly(host)
	}
	s.duration.WithLabelValues(s.Classify(cmd), status, label).Observe(latency.Seconds())
}
