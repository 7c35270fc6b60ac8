// Package errors defines the failure taxonomy of the plotting pipeline.
//
// Every failure that reaches a tool caller carries a Kind so the caller can
// decide between fixing the request and retrying it later.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a pipeline failure.
type Kind string

// Failure kinds reported to callers as error_kind.
const (
	KindValidation        Kind = "validation_error"
	KindDataUnavailable   Kind = "data_unavailable"
	KindRender            Kind = "render_error"
	KindResourceExhausted Kind = "resource_exhausted"
	KindOverloaded        Kind = "overloaded"
	KindTimeout           Kind = "timeout"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal_error"
)

// Sentinels for errors.Is comparisons by kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrDataUnavailable   = &Error{Kind: KindDataUnavailable}
	ErrRender            = &Error{Kind: KindRender}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrOverloaded        = &Error{Kind: KindOverloaded}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCanceled          = &Error{Kind: KindCanceled}
)

// Error is a categorized pipeline failure.
type Error struct {
	// Kind is the failure category.
	Kind Kind
	// Op is the operation that failed (e.g., "refdata.load").
	Op string
	// Field is the offending input path for validation failures.
	Field string
	// Message is the human-readable description.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	b.WriteString(e.Detail())

	return b.String()
}

// Detail returns the caller-facing description without the operation prefix.
func (e *Error) Detail() string {
	var b strings.Builder

	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)

	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with an operation and message, keeping err's kind.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Message: message, Err: err}
}

// WrapKind wraps err under an explicit kind.
func WrapKind(err error, kind Kind, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation reports a rejected request field.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Op: "plot.validate", Field: field, Message: reason}
}

// Validationf reports a rejected request field with a formatted reason.
func Validationf(field, format string, args ...any) *Error {
	return Validation(field, fmt.Sprintf(format, args...))
}

// KindOf returns the kind carried by err.
// Context errors map to timeout and canceled; anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// DetailOf returns the caller-facing description of err.
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}

// Retryable reports whether resubmitting the same request may succeed.
func Retryable(kind Kind) bool {
	switch kind {
	case KindDataUnavailable, KindOverloaded, KindTimeout:
		return true
	default:
		return false
	}
}

// Is wraps errors.Is so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As so callers need a single import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join so callers need a single import.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
