package mosaic

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies merge failures by where they struck.
type Kind int

const (
	// KindConfiguration marks invalid inputs or options, detected before
	// any pixel work starts.
	KindConfiguration Kind = iota + 1
	// KindRead marks a failure reading a source layer.
	KindRead
	// KindWrite marks a failure writing or finalizing the destination.
	KindWrite
	// KindCancelled marks a run stopped by its context. Not a defect:
	// callers usually report it as an interruption, not an error.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the failure type returned by Merge. Op names the stage that
// failed; Err carries the cause when there is one.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match context.Canceled through a cancelled merge error.
func (e *Error) Is(target error) bool {
	if e.Kind == KindCancelled && (target == context.Canceled || target == context.DeadlineExceeded) {
		return errors.Is(e.Err, target) || e.Err == nil
	}
	return false
}

// KindOf extracts the Kind from err, or 0 when err is not a merge error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return 0
}

// IsCancelled reports whether err is a cancellation, either a merge error
// of KindCancelled or a bare context error.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func configErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: "plan", Err: fmt.Errorf(format, args...)}
}

// wrapErr classifies an error from a pipeline stage, promoting context
// errors to KindCancelled regardless of the stage's own kind.
func wrapErr(kind Kind, op string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCancelled
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
