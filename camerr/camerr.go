// Package camerr defines the error kinds shared by the capture pipeline.
//
// Every failure surfaced by a session carries a Kind and the name of the
// operation that failed. Callers test the kind with errors.Is against the
// sentinels below:
//
//	if errors.Is(err, camerr.ErrEncode) {
//		// no usable file was produced
//	}
package camerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindDevice covers driver open/start/stop/acquire/release failures.
	KindDevice Kind = iota + 1
	// KindInvalidState is an operation invoked in the wrong session state.
	KindInvalidState
	// KindPrecondition is a buffer size mismatch passed to conversion or
	// encoding. It points at a caller bug, not a runtime condition.
	KindPrecondition
	// KindEncode is an output file that could not be opened or written.
	KindEncode
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device error"
	case KindInvalidState:
		return "invalid state"
	case KindPrecondition:
		return "precondition failed"
	case KindEncode:
		return "encode error"
	default:
		return "unknown error"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrDevice       = errors.New("camerr: device error")
	ErrInvalidState = errors.New("camerr: invalid state")
	ErrPrecondition = errors.New("camerr: precondition failed")
	ErrEncode       = errors.New("camerr: encode error")
)

// Error is a failure of one pipeline operation.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "init", "acquire", "write".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindDevice:
		return ErrDevice
	case KindInvalidState:
		return ErrInvalidState
	case KindPrecondition:
		return ErrPrecondition
	case KindEncode:
		return ErrEncode
	default:
		return nil
	}
}

// Device wraps a driver failure.
func Device(op string, err error) error {
	return &Error{Kind: KindDevice, Op: op, Err: err}
}

// InvalidState reports op being called in the wrong state.
func InvalidState(op string, format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Op: op, Err: fmt.Errorf(format, args...)}
}

// Precondition reports a buffer contract violation.
func Precondition(op string, format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Op: op, Err: fmt.Errorf(format, args...)}
}

// Encode wraps an output failure.
func Encode(op string, err error) error {
	return &Error{Kind: KindEncode, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
