// Package errs defines the engine's error taxonomy.
//
// Every engine failure is an *Error carrying one Kind. Callers branch with
// errors.Is against the Kind sentinels:
//
//	if errors.Is(err, errs.ErrConflict) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes engine errors.
type Kind string

const (
	// KindConflict: a ledger record already exists for the habit and date.
	KindConflict Kind = "CONFLICT"
	// KindInvalidDate: the date is outside the accepted window or out of order.
	KindInvalidDate Kind = "INVALID_DATE"
	// KindNotFound: unknown habit, user or achievement.
	KindNotFound Kind = "NOT_FOUND"
	// KindArchived: mutation of an archived habit.
	KindArchived Kind = "ARCHIVED"
	// KindInvalidInput: a field failed engine-level validation.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindTransientStore: persistence hiccup; safe to retry.
	KindTransientStore Kind = "TRANSIENT_STORE"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConflict       = &Error{Kind: KindConflict}
	ErrInvalidDate    = &Error{Kind: KindInvalidDate}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrArchived       = &Error{Kind: KindArchived}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrTransientStore = &Error{Kind: KindTransientStore}
)

// Error is an engine error.
type Error struct {
	Kind    Kind
	Op      string // operation, e.g. "habits.Complete"
	HabitID string
	Msg     string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.HabitID != "" {
		msg += fmt.Sprintf(" (habit=%s)", e.HabitID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

func newf(kind Kind, op, habitID, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, HabitID: habitID, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(op, habitID, format string, args ...any) *Error {
	return newf(KindConflict, op, habitID, format, args...)
}

// InvalidDate builds a KindInvalidDate error.
func InvalidDate(op, habitID, format string, args ...any) *Error {
	return newf(KindInvalidDate, op, habitID, format, args...)
}

// NotFound builds a KindNotFound error.
func NotFound(op, habitID, format string, args ...any) *Error {
	return newf(KindNotFound, op, habitID, format, args...)
}

// Archived builds a KindArchived error.
func Archived(op, habitID string) *Error {
	return &Error{Kind: KindArchived, Op: op, HabitID: habitID, Msg: "habit is archived"}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(op, format string, args ...any) *Error {
	return newf(KindInvalidInput, op, "", format, args...)
}

// Transient wraps a store failure as retryable.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransientStore, Op: op, Err: err}
}
