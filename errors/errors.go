package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrValidation          = fmt.Errorf("validation error")
	ErrNotFound            = fmt.Errorf("not found")
	ErrConflict            = fmt.Errorf("conflict")
	ErrPersistence         = fmt.Errorf("persistence error")
	ErrInvalidTransition   = fmt.Errorf("invalid status transition")
	ErrForbiddenTransition = fmt.Errorf("only the seller may change the status")
	ErrRateLimited         = fmt.Errorf("rate limited")
	ErrTransport           = fmt.Errorf("transport error")
	ErrInvalidToken        = fmt.Errorf("invalid token")
	ErrBackplaneClosed     = fmt.Errorf("backplane closed")
)

// ConflictError is returned when a chat request already exists for the same
// item and participants. ExistingID lets the caller redirect instead of retrying.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conversation already exists: %s", e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Code maps an error to the code sent back to the originating connection.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case goerrors.Is(err, ErrValidation):
		return "validation_error"
	case goerrors.Is(err, ErrNotFound):
		return "not_found"
	case goerrors.Is(err, ErrConflict):
		return "conflict"
	case goerrors.Is(err, ErrPersistence):
		return "persistence_error"
	case goerrors.Is(err, ErrInvalidTransition), goerrors.Is(err, ErrForbiddenTransition):
		return "invalid_transition"
	case goerrors.Is(err, ErrRateLimited):
		return "rate_limited"
	case goerrors.Is(err, ErrInvalidToken):
		return "unauthorized"
	default:
		return "internal"
	}
}

// ExistingConversation extracts the conversation id carried by a ConflictError.
func ExistingConversation(err error) (string, bool) {
	var conflict *ConflictError
	if goerrors.As(err, &conflict) {
		return conflict.ExistingID, true
	}
	return "", false
}

func Is(err, target error) bool { return goerrors.Is(err, target) }

func As(err error, target any) bool { return goerrors.As(err, target) }

// IsDomain reports whether err already belongs to the relay taxonomy.
func IsDomain(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrPersistence,
		ErrInvalidTransition, ErrForbiddenTransition, ErrRateLimited} {
		if goerrors.Is(err, target) {
			return true
		}
	}
	return false
}
