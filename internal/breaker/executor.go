package breaker

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// ErrOpen is returned by Registry.Execute when any breaker in the chain
// rejects the command because it is OPEN.
var ErrOpen = errors.New("breaker: circuit open")

// Classify decides whether err counts as a breaker failure: only BAD
// responses, unsolicited BYE, and network-level errors trip a breaker.
// A NO response is a normal protocol outcome and must
// never count. Connection-level detection follows the teacher's
// isConnError (internal/client/client.go); go-imap surfaces BAD/BYE
// status responses as plain errors whose text carries the response
// type, so those two are matched by substring ("BAD ", "* BYE") or by
// a leading "BYE".
func Classify(err error) bool {
	if err == nil {
		return false
	}
	if isConnError(err) {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "BAD ") || strings.Contains(msg, "* BYE") || strings.HasPrefix(msg, "BYE")
}

// isConnError mirrors the teacher's internal/client/client.go isConnError.
func isConnError(err error) bool {
	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &netErr)
}

// groupEntry pairs a host matcher with its breaker instance.
type groupEntry struct {
	hosts   *HostList
	breaker *Breaker
}

// Registry chains the generic, primary, and host-group breakers: a
// command passes only if every breaker in the applicable chain is
// open-for-business, and a failure is reported to every breaker that
// allowed the command.
type Registry struct {
	mu sync.Mutex

	generic *Breaker

	primaryMode string // "account" or "endpoint", from breaker.primary.applyPerEndpoint
	primary     map[string]*Breaker
	primaryCfg  Config

	groups    []*groupEntry
	groupCfg  Config
}

// NewRegistry builds a Registry. genericCfg seeds one process-wide
// breaker; primaryCfg is cloned per account (or per endpoint, if
// perEndpoint is true) on first use.
func NewRegistry(genericCfg, primaryCfg Config, perEndpoint bool) (*Registry, error) {
	if err := genericCfg.Normalize(); err != nil {
		return nil, err
	}
	if err := primaryCfg.Normalize(); err != nil {
		return nil, err
	}
	mode := "account"
	if perEndpoint {
		mode = "endpoint"
	}
	return &Registry{
		generic:     New(genericCfg),
		primaryMode: mode,
		primary:     make(map[string]*Breaker),
		primaryCfg:  primaryCfg,
	}, nil
}

// AddHostGroup registers a breaker scoped to hosts matching patterns.
// cfg is normalized in place.
func (r *Registry) AddHostGroup(patterns []string, cfg Config) error {
	if err := cfg.Normalize(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, &groupEntry{hosts: NewHostList(patterns), breaker: New(cfg)})
	return nil
}

func (r *Registry) primaryBreaker(primaryKey string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.primary[primaryKey]
	if !ok {
		cfg := r.primaryCfg
		cfg.Name = "primary:" + primaryKey
		b = New(cfg)
		r.primary[primaryKey] = b
	}
	return b
}

// matchingGroups returns every host-group breaker whose pattern matches host.
func (r *Registry) matchingGroups(host string) []*Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Breaker
	for _, g := range r.groups {
		if g.hosts.Match(host) {
			out = append(out, g.breaker)
		}
	}
	return out
}

// PrimaryKey computes the key used to scope the primary-server breaker,
// honoring the breaker.primary.applyPerEndpoint option (per-account
// versus per-endpoint granularity).
func (r *Registry) PrimaryKey(accountKey, endpoint string) string {
	if r.primaryMode == "endpoint" {
		return endpoint
	}
	return accountKey
}

// Execute runs cmd through the generic breaker, the primary breaker
// scoped by primaryKey, and every host-group breaker matching host, in
// that order. A host matched by at least one host-group breaker is not
// covered by the generic breaker. If any breaker is OPEN, cmd does not
// run and ErrOpen is returned. On completion, Classify(err) is reported
// to every breaker that allowed the command.
func (r *Registry) Execute(primaryKey, host string, cmd func() error) error {
	groups := r.matchingGroups(host)
	var chain []*Breaker
	if len(groups) == 0 {
		chain = append(chain, r.generic)
	}
	chain = append(chain, r.primaryBreaker(primaryKey))
	chain = append(chain, groups...)

	allowed := make([]*Breaker, 0, len(chain))
	for _, b := range chain {
		if !b.Allow() {
			for _, a := range allowed {
				a.Report(false)
			}
			return ErrOpen
		}
		allowed = append(allowed, b)
	}

	err := cmd()
	failed := Classify(err)
	for _, b := range allowed {
		b.Report(failed)
	}
	return err
}

// State reports the current state of the generic, primary (for
// primaryKey), and any matching host-group breakers, for diagnostics
// and CLI status reporting.
func (r *Registry) State(primaryKey, host string) map[string]State {
	states := map[string]State{"generic": r.generic.State()}
	states["primary:"+primaryKey] = r.primaryBreaker(primaryKey).State()
	for i, b := range r.matchingGroups(host) {
		states["group"+itoa(i)] = b.State()
	}
	return states
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
