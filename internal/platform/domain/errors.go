package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a DomainError for transport mapping.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION_FAILED"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeForbidden    ErrorCode = "UNAUTHORIZED"
	CodeInvalidState ErrorCode = "INVALID_TRANSITION"
	CodeCapacity     ErrorCode = "CAPACITY_EXCEEDED"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeTransient    ErrorCode = "TRANSIENT"
)

// CapacityMessage is the only message ever returned for a capacity failure.
// It intentionally names no segment.
const CapacityMessage = "not enough seats for the selected section"

// DomainError is a classified business error.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewValidationError reports malformed or out-of-range input.
func NewValidationError(message string) error {
	return &DomainError{Code: CodeValidation, Message: message}
}

// NewNotFoundError reports a missing (or invisible) entity.
func NewNotFoundError(entity, id string) error {
	return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// NewForbiddenError reports an actor without the right to perform an operation.
func NewForbiddenError(message string) error {
	return &DomainError{Code: CodeForbidden, Message: message}
}

// NewInvalidStateError reports a disallowed state machine move.
func NewInvalidStateError(from, to string) error {
	return &DomainError{Code: CodeInvalidState, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

// NewInvalidStateMessage reports a state violation with a custom message.
func NewInvalidStateMessage(message string) error {
	return &DomainError{Code: CodeInvalidState, Message: message}
}

// NewCapacityError reports insufficient seats on at least one segment.
func NewCapacityError() error {
	return &DomainError{Code: CodeCapacity, Message: CapacityMessage}
}

// NewConflictError reports a lost optimistic or serialization race.
func NewConflictError(message string) error {
	return &DomainError{Code: CodeConflict, Message: message}
}

// NewConflictErrorWrap is NewConflictError carrying the underlying cause.
func NewConflictErrorWrap(message string, err error) error {
	return &DomainError{Code: CodeConflict, Message: message, Err: err}
}

// NewTransientError reports a retryable failure after internal retries were exhausted.
func NewTransientError(message string, err error) error {
	return &DomainError{Code: CodeTransient, Message: message, Err: err}
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsValidation(err error) bool   { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool     { return CodeOf(err) == CodeNotFound }
func IsForbidden(err error) bool    { return CodeOf(err) == CodeForbidden }
func IsInvalidState(err error) bool { return CodeOf(err) == CodeInvalidState }
func IsCapacity(err error) bool     { return CodeOf(err) == CodeCapacity }
func IsConflict(err error) bool     { return CodeOf(err) == CodeConflict }
func IsTransient(err error) bool    { return CodeOf(err) == CodeTransient }
