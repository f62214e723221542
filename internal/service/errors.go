// Package service holds the booking transaction manager and the booking
// query service. Handlers talk to these types only; repositories and
// drivers stay behind them.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies a booking error for the HTTP layer.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindNotFound             Kind = "not_found"
	KindInsufficientCapacity Kind = "insufficient_capacity"
	KindConflict             Kind = "conflict"
	KindReferenceCollision   Kind = "reference_collision"
	KindPersistence          Kind = "persistence"
)

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error every service operation returns.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Client reports whether the error was caused by the request rather than
// by the system.
func (e *Error) Client() bool {
	switch e.Kind {
	case KindReferenceCollision, KindPersistence:
		return false
	}
	return true
}

var (
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "authentication required"}
	ErrForbidden            = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientCapacity = &Error{Kind: KindInsufficientCapacity, Message: "not enough seats available"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "conflict"}
	ErrReferenceCollision   = &Error{Kind: KindReferenceCollision, Message: "could not allocate a unique booking reference"}
	ErrPersistence          = &Error{Kind: KindPersistence, Message: "booking storage failure"}
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind of err, treating unknown errors as persistence
// failures.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPersistence
}

func isClientError(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Client()
}
