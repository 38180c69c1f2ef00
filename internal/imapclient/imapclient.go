// Package imapclient wraps emersion/go-imap's client.Client with the
// teacher's reconnect-with-backoff discipline (internal/client/client.go:
// connectAndLogin/Reconnect/safeCall/isConnError), narrowed to the
// surface collab.Conn and the breaker/metrics executor chain need, and
// routed through internal/breaker and internal/metrics instead of the
// teacher's bare retry loop. Unlike the teacher's package-level
// folderLocks map (fine for a single sync binary), lock state here is
// instance-scoped, since a host program may embed more than one Session.
package imapclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/greeddj/imapmw/internal/breaker"
	"github.com/greeddj/imapmw/internal/collab"
	"github.com/greeddj/imapmw/internal/imaplog"
)

const (
	initialBackoff       = 2 * time.Second
	reconnectInterval    = 10 * time.Second
	maxReconnectAttempts = 5
)

// DialOptions configures a new Session.
type DialOptions struct {
	Addr      string
	User      string
	Pass      string
	UseTLS    bool
	TLSConfig *tls.Config

	AccountID int64
	Kind      collab.ConnKind

	Breaker *breaker.Registry
	Metrics collab.MetricsSink
	Clock   collab.Clock
}

// Session is a reconnect-aware IMAP connection, implementing collab.Conn.
type Session struct {
	*client.Client

	opts   DialOptions
	dialFn func(addr string) (net.Conn, error)

	mu            sync.Mutex
	backoff       time.Duration
	lastReconnect time.Time

	delimiter string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ collab.Conn = (*Session)(nil)

// Dial establishes a connection and logs in, mirroring the teacher's New.
func Dial(ctx context.Context, opts DialOptions) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = collab.SystemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = collab.NopMetricsSink{}
	}

	s := &Session{
		opts:    opts,
		backoff: initialBackoff,
		locks:   make(map[string]*sync.Mutex),
	}
	s.dialFn = func(addr string) (net.Conn, error) {
		d := net.Dialer{}
		if opts.UseTLS {
			return tls.DialWithDialer(&d, "tcp", addr, opts.TLSConfig)
		}
		return d.DialContext(ctx, "tcp", addr)
	}

	if err := s.connectAndLogin(); err != nil {
		return nil, err
	}
	return s, nil
}

// Meta implements collab.Conn.
func (s *Session) Meta() collab.ConnMeta {
	host, port := splitHostPort(s.opts.Addr)
	return collab.ConnMeta{Kind: s.opts.Kind, Host: host, Port: port}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func (s *Session) connectAndLogin() error {
	conn, err := s.dialFn(s.opts.Addr)
	if err != nil {
		return err
	}
	c, err := client.New(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := c.Login(s.opts.User, s.opts.Pass); err != nil {
		_ = c.Logout()
		return err
	}
	s.Client = c
	return nil
}

// Reconnect tears down and rebuilds the session with exponential backoff.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if sinceLast := now.Sub(s.lastReconnect); sinceLast < reconnectInterval {
		time.Sleep(reconnectInterval - sinceLast)
	}

	if s.Client != nil {
		_ = s.Logout()
	}

	var err error
	delay := s.backoff
	for i := 1; i <= maxReconnectAttempts; i++ {
		imaplog.Get().Debug().Str("host", s.opts.Addr).Int("attempt", i).Msg("imapclient: reconnecting")
		if err = s.connectAndLogin(); err == nil {
			s.lastReconnect = time.Now()
			s.backoff = initialBackoff
			return nil
		}
		time.Sleep(delay)
		delay *= 2
	}

	s.lastReconnect = time.Now()
	return fmt.Errorf("imapclient: failed to reconnect to %s after %d attempts: %w", s.opts.Addr, maxReconnectAttempts, err)
}

// safeCall retries fn once, after a reconnect, if it failed with a
// connection-level error (teacher's isConnError).
func (s *Session) safeCall(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if isConnError(err) {
		if rerr := s.Reconnect(); rerr != nil {
			return rerr
		}
		return fn()
	}
	return err
}

func isConnError(err error) bool {
	var netErr net.Error
	return errors.Is(err, net.ErrClosed) || errors.As(err, &netErr)
}

// Execute runs cmd (a single named IMAP operation) through the breaker
// chain and records its latency via the metrics sink, retrying once
// on a connection-level failure via safeCall. cmdName should be the
// bare command keyword (e.g. "FETCH", "UID FETCH", "SEARCH").
func (s *Session) Execute(cmdName string, cmd func() error) error {
	host := s.opts.Addr
	run := func() error { return s.safeCall(cmd) }

	start := s.opts.Clock.Monotonic()
	var err error
	if s.opts.Breaker != nil {
		primaryKey := s.opts.Breaker.PrimaryKey(fmt.Sprintf("%d", s.opts.AccountID), host)
		err = s.opts.Breaker.Execute(primaryKey, host, run)
	} else {
		err = run()
	}
	elapsed := time.Duration(s.opts.Clock.Monotonic() - start)

	status := statusOf(err)
	s.opts.Metrics.ObserveCommand(cmdName, status, host, elapsed)
	return err
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, breaker.ErrOpen):
		return "breaker_open"
	case breaker.Classify(err):
		return "bad"
	default:
		return "no"
	}
}

// Select selects a mailbox through the executor chain.
func (s *Session) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	var mbox *imap.MailboxStatus
	cmd := "SELECT"
	if readOnly {
		cmd = "EXAMINE"
	}
	err := s.Execute(cmd, func() error {
		var e error
		mbox, e = s.Client.Select(name, readOnly)
		return e
	})
	return mbox, err
}

// Delimiter returns (and caches) the server's hierarchy delimiter.
func (s *Session) Delimiter() (string, error) {
	if s.delimiter != "" {
		return s.delimiter, nil
	}
	mailboxes := make(chan *imap.MailboxInfo, 1)
	done := make(chan error, 1)
	go func() { done <- s.Client.List("", "", mailboxes) }()

	delimiter := "/"
	for mbox := range mailboxes {
		if mbox.Delimiter != "" {
			delimiter = mbox.Delimiter
			break
		}
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("imapclient: get delimiter: %w", err)
	}
	s.delimiter = delimiter
	return delimiter, nil
}

// FolderLock returns a mutex scoped to this session for the given
// folder path, serializing e.g. concurrent folder-creation attempts.
func (s *Session) FolderLock(folder string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if lock, ok := s.locks[folder]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[folder] = lock
	return lock
}

// Logout closes the session.
func (s *Session) Logout() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Logout()
}

// IsHierarchySeparated reports whether name contains the given
// hierarchy delimiter; an empty delimiter never matches.
func IsHierarchySeparated(name, delimiter string) bool {
	return delimiter != "" && strings.Contains(name, delimiter)
}
