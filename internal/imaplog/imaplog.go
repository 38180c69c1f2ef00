// Package imaplog provides the structured logger used across the
// middleware. It wraps zerolog behind a small interface so packages
// depend on a few methods rather than the concrete logger type.
package imaplog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface consumed by every package.
type Logger interface {
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

// zlog adapts a zerolog.Logger to Logger.
type zlog struct {
	l zerolog.Logger
}

func (z zlog) Debug() *zerolog.Event { return z.l.Debug() }
func (z zlog) Warn() *zerolog.Event  { return z.l.Warn() }
func (z zlog) Error() *zerolog.Event { return z.l.Error() }

var (
	mu      sync.RWMutex
	current Logger = New(os.Stderr, false)
)

// New builds a Logger writing to w; debug enables debug-level events.
func New(w io.Writer, debug bool) Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return zlog{l: l}
}

// Set installs the process-wide default logger used by package-level helpers.
func Set(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

// Get returns the process-wide default logger.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
