package reconciliation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindInvalidState ErrorKind = "invalid_state"
	KindInternal     ErrorKind = "internal"
)

// Error is returned by every service operation. Callers branch on Kind,
// either directly or with errors.Is against the sentinels below.
type Error struct {
	Kind      ErrorKind
	Op        string
	Message   string
	Field     string
	InvoiceID *uuid.UUID
	Err       error
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrInternal     = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of a service error, internal for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationError(op, field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func conflictError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func invalidStateError(op string, invoiceID uuid.UUID, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Op: op, InvoiceID: &invoiceID, Message: fmt.Sprintf(format, args...)}
}

// storageError wraps a repository failure, turning a missing row into
// NotFound.
func storageError(op string, err error, what string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError(op, "%s not found", what)
	}
	return &Error{Kind: KindInternal, Op: op, Message: "loading " + what, Err: err}
}

func internalError(op, message string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message, Err: err}
}
