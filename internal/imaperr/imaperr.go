// Package imaperr provides the error taxonomy shared by every command
// executed against an IMAP server, so callers can branch on failure kind
// without string-matching error messages.
package imaperr

import (
	"errors"
	"fmt"
)

// Kind classifies why a command failed.
type Kind int

const (
	// KindUnknown is the zero value; never intentionally returned.
	KindUnknown Kind = iota
	// KindProtocolMalformed means the server response could not be parsed.
	KindProtocolMalformed
	// KindCommandBad means the server returned BAD.
	KindCommandBad
	// KindCommandFailed means the server returned NO.
	KindCommandFailed
	// KindInvalidMessageSet means a BAD response carried "invalid message set" text.
	KindInvalidMessageSet
	// KindFolderNotFound means LIST/STATUS showed no such folder and no namespace matched.
	KindFolderNotFound
	// KindAccessDenied means MYRIGHTS or an ACL check forbade the operation.
	KindAccessDenied
	// KindNetwork means a socket error, timeout, or unexpected EOF occurred.
	KindNetwork
	// KindBreakerOpen means a circuit breaker short-circuited the command.
	KindBreakerOpen
	// KindOverQuota means the server response text matched a quota-exhausted pattern.
	KindOverQuota
	// KindConfig means a configuration value was malformed; fatal at load.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindProtocolMalformed:
		return "protocol_malformed"
	case KindCommandBad:
		return "command_bad"
	case KindCommandFailed:
		return "command_failed"
	case KindInvalidMessageSet:
		return "invalid_message_set"
	case KindFolderNotFound:
		return "folder_not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindNetwork:
		return "network"
	case KindBreakerOpen:
		return "breaker_open"
	case KindOverQuota:
		return "over_quota"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the wrapped error type carrying a Kind plus diagnostic properties.
type Error struct {
	Kind    Kind
	Command string // mail command text, e.g. "UID FETCH"
	Folder  string
	Account string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("imap: %s", e.Kind)
	if e.Command != "" {
		msg += fmt.Sprintf(" cmd=%q", e.Command)
	}
	if e.Folder != "" {
		msg += fmt.Sprintf(" folder=%q", e.Folder)
	}
	if e.Account != "" {
		msg += fmt.Sprintf(" account=%q", e.Account)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithCommand returns a copy of e annotated with command text.
func (e *Error) WithCommand(cmd string) *Error {
	c := *e
	c.Command = cmd
	return &c
}

// WithFolder returns a copy of e annotated with a folder name.
func (e *Error) WithFolder(folder string) *Error {
	c := *e
	c.Folder = folder
	return &c
}

// WithAccount returns a copy of e annotated with an account/login identifier.
func (e *Error) WithAccount(account string) *Error {
	c := *e
	c.Account = account
	return &c
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
