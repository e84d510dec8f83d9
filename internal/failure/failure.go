// Package failure classifies pipeline errors so callers can tell a
// not-ready rejection from a transport, upstream, parse or timeout failure.
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a pipeline failure.
type Kind int

const (
	// Unknown is reported for errors that were never classified.
	Unknown Kind = iota
	// NotReady means the vision backend has not finished warming up.
	NotReady
	// Transport means an upstream endpoint could not be reached or read.
	Transport
	// Upstream means the endpoint itself reported failure, cancellation or an error field.
	Upstream
	// Parse means a response body did not have the expected shape.
	Parse
	// Timeout means polling attempts ran out before a terminal state.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case NotReady:
		return "not_ready"
	case Transport:
		return "transport"
	case Upstream:
		return "upstream"
	case Parse:
		return "parse"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Raw holds the offending response body or
// model content, if any, for operator inspection.
type Error struct {
	Kind Kind
	Msg  string
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Raw != "" {
		msg = msg + " (raw: " + e.Raw + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with a formatted message prefix.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithRaw attaches raw content to the error and returns it.
func (e *Error) WithRaw(raw string) *Error {
	e.Raw = raw
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err's chain carries a failure of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
