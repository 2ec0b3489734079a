package scrape

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a scrape attempt failed.
type ErrorKind string

const (
	KindInvalidServer    ErrorKind = "invalid_server"
	KindInvalidWorld     ErrorKind = "invalid_world"
	KindNotFound         ErrorKind = "not_found"
	KindNetwork          ErrorKind = "network_error"
	KindTimeout          ErrorKind = "timeout"
	KindInsufficientData ErrorKind = "insufficient_data"
	KindStorage          ErrorKind = "storage_error"

	// KindCanceled means no request was sent: the caller's context ran out
	// while waiting for a pacing slot.
	KindCanceled ErrorKind = "canceled"
)

// Retryable reports whether the kind feeds the per-character error streak.
// Caller errors and storage errors never touch recovery state.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNotFound, KindNetwork, KindTimeout, KindInsufficientData:
		return true
	}
	return false
}

// Error is the structured failure surfaced to callers of the engine.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind ErrorKind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// AsError returns err as an *Error, classifying unknown errors as network
// failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return Wrap(KindNetwork, err, "unclassified failure")
}
