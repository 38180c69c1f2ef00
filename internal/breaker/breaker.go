// Package breaker implements a circuit-breaker state machine plus a
// generic/primary/host-group executor chain. The atomic-counter state
// machine is grounded on
// fenilsonani-email-server/internal/resilience/circuitbreaker.go,
// generalized to rolling failure/success ratios and to a restricted
// failure classification (BAD/BYE/network only — a NO response never
// trips a breaker).
package breaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is one of the three circuit-breaker states.
type State int32

const (
	// Closed passes every command through.
	Closed State = iota
	// Open short-circuits every command with ErrBreakerOpen.
	Open
	// HalfOpen allows a limited number of probe commands through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config parameterizes one breaker instance.
type Config struct {
	// Name identifies the breaker for logging/metrics.
	Name string

	FailureThreshold  int64
	FailureExecutions int64
	SuccessThreshold  int64
	SuccessExecutions int64

	// Delay is how long OPEN waits before attempting HALF_OPEN.
	Delay time.Duration

	// HalfOpenMaxProbes bounds concurrent probe commands in HALF_OPEN.
	HalfOpenMaxProbes int64

	// OnStateChange, if set, is invoked (off the critical path) on every transition.
	OnStateChange func(name string, from, to State)
}

// Normalize applies the "executions < threshold" and "executions == 0"
// rules, returning an error if the config is unusable.
func (c *Config) Normalize() error {
	if c.FailureExecutions == 0 || c.SuccessExecutions == 0 {
		return &ConfigError{Name: c.Name, Reason: "executions must be > 0"}
	}
	if c.FailureExecutions < c.FailureThreshold {
		c.FailureExecutions = c.FailureThreshold
	}
	if c.SuccessExecutions < c.SuccessThreshold {
		c.SuccessExecutions = c.SuccessThreshold
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = 1
	}
	return nil
}

// ConfigError reports a malformed breaker configuration (imaperr.KindConfig at the call site).
type ConfigError struct {
	Name   string
	Reason string
}

func (e *ConfigError) Error() string {
	return "breaker config " + e.Name + ": " + e.Reason
}

// window is a fixed-size ring of pass/fail observations used to compute
// the rolling failure and success ratios.
type window struct {
	mu       sync.Mutex
	size     int
	buf      []bool // true = failure
	pos      int
	count    int
	failures int
}

func newWindow(size int64) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: int(size), buf: make([]bool, size)}
}

// record appends an observation, returns the current failure count and sample count.
func (w *window) record(failed bool) (failureCount, sampleCount int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == w.size {
		if w.buf[w.pos] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.buf[w.pos] = failed
	if failed {
		w.failures++
	}
	w.pos = (w.pos + 1) % w.size
	return w.failures, w.count
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buf {
		w.buf[i] = false
	}
	w.pos, w.count, w.failures = 0, 0, 0
}

// Breaker is one circuit-breaker instance.
type Breaker struct {
	cfg Config

	state           int32 // atomic State
	lastStateChange int64 // atomic unix nano
	halfOpenProbes  int64 // atomic

	failWindow *window
	okWindow   *window
}

// New builds a Breaker from cfg, which must already have passed Normalize.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:             cfg,
		state:           int32(Closed),
		lastStateChange: time.Now().UnixNano(),
		failWindow:      newWindow(cfg.FailureExecutions),
		okWindow:        newWindow(cfg.SuccessExecutions),
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State { return State(atomic.LoadInt32(&b.state)) }

// Allow reports whether a command may proceed. It performs the
// OPEN→HALF_OPEN delay check and the HALF_OPEN probe-count limit as a
// side effect.
func (b *Breaker) Allow() bool {
	switch b.State() {
	case Closed:
		return true
	case Open:
		last := atomic.LoadInt64(&b.lastStateChange)
		if time.Since(time.Unix(0, last)) >= b.cfg.Delay {
			b.transition(Open, HalfOpen)
			return b.Allow()
		}
		return false
	case HalfOpen:
		n := atomic.AddInt64(&b.halfOpenProbes, 1)
		if n > b.cfg.HalfOpenMaxProbes {
			atomic.AddInt64(&b.halfOpenProbes, -1)
			return false
		}
		return true
	default:
		return true
	}
}

// Report records the outcome of a command that Allow permitted.
// failed must reflect ONLY the BAD/BYE/network classification; a NO
// response must never be reported as a failure.
func (b *Breaker) Report(failed bool) {
	switch b.State() {
	case Closed:
		failures, _ := b.failWindow.record(failed)
		if ratio(failures, int(b.cfg.FailureExecutions)) >= ratio(int(b.cfg.FailureThreshold), int(b.cfg.FailureExecutions)) {
			b.transition(Closed, Open)
		}
	case HalfOpen:
		atomic.AddInt64(&b.halfOpenProbes, -1)
		if failed {
			b.transition(HalfOpen, Open)
			return
		}
		_, samples := b.okWindow.record(false)
		successes := samples // okWindow only ever receives successes here
		if samples >= int(b.cfg.SuccessThreshold) &&
			ratio(successes, samples) >= ratio(int(b.cfg.SuccessThreshold), int(b.cfg.SuccessExecutions)) {
			b.transition(HalfOpen, Closed)
		}
	case Open:
		// Allow() should have rejected before we got here; ignore.
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (b *Breaker) transition(from, to State) {
	if !atomic.CompareAndSwapInt32(&b.state, int32(from), int32(to)) {
		return
	}
	atomic.StoreInt64(&b.lastStateChange, time.Now().UnixNano())
	atomic.StoreInt64(&b.halfOpenProbes, 0)
	b.failWindow.reset()
	b.okWindow.reset()
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// Reset forces the breaker back to CLOSED, e.g. for tests or operator override.
func (b *Breaker) Reset() {
	atomic.StoreInt32(&b.state, int32(Closed))
	atomic.StoreInt64(&b.lastStateChange, time.Now().UnixNano())
	atomic.StoreInt64(&b.halfOpenProbes, 0)
	b.failWindow.reset()
	b.okWindow.reset()
}
