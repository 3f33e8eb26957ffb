package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind classifies a service failure. The values double as the stable
// "kind" string reported to API clients.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindConflict   Kind = "ConflictError"
	KindNotFound   Kind = "NotFoundError"
	KindStore      Kind = "StoreError"
)

// Error is returned by every StudentService operation that fails.
//
// Message is safe to show to a client. Err keeps the underlying cause
// (typically a storage error) for logs and errors.Is / errors.As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err. Errors that did not come from
// this package are treated as storage failures.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindStore
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return "internal storage error"
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func notFound(regNo string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("student with registration number %q not found", regNo)}
}

// validationFailed turns validator field errors into one readable
// ValidationError, e.g. "field regNo is required, field name is required".
func validationFailed(errs validator.ValidationErrors) *Error {
	msgs := make([]string, 0, len(errs))

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", e.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return &Error{Kind: KindValidation, Message: strings.Join(msgs, ", ")}
}
