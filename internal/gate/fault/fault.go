// Package fault classifies worker errors by how the caller should react:
// retry locally, drop the offending input and continue, or give up and
// let the supervisor respawn the worker.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the recovery class of an error.
type Kind int

const (
	// KindUnknown is any error that was not classified. Workers treat it
	// like KindFatal.
	KindUnknown Kind = iota
	KindTransient
	KindDrop
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindDrop:
		return "drop"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its recovery class and the
// operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable (read timeouts, long-poll timeouts).
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Drop marks err as affecting one input only (a malformed modem line).
func Drop(op string, err error) error {
	return &Error{Kind: KindDrop, Op: op, Err: err}
}

// Fatal marks err as requiring the worker to exit and be respawned.
func Fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// KindOf reports the class of the outermost classified error in err's
// chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsDrop reports whether err only invalidates a single input.
func IsDrop(err error) bool { return KindOf(err) == KindDrop }

// ErrStopped is returned by a worker that exited on purpose (actuator Close).
// The supervisor does not respawn it.
var ErrStopped = errors.New("worker stopped")

// IsDeliberate reports whether a worker exit was intended.
func IsDeliberate(err error) bool {
	return errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled)
}
