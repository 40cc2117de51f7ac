package entity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("identity not found")
	ErrTimeout          = errors.New("store timeout")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Field names used by DuplicateIdentityError and ConstraintViolationError.
const (
	FieldEmail       = "email"
	FieldUsername    = "username"
	FieldProviderKey = "provider"
)

// DuplicateIdentityError is the business outcome of a uniqueness conflict.
type DuplicateIdentityError struct {
	Field string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("identity with this %s already exists", e.Field)
}

// NotFoundError names the missing identity. errors.Is(err, ErrNotFound) holds.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("identity %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IllegalTransitionError is returned when the state machine rejects a change.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// ConstraintViolationError is raised by a store when a unique constraint
// rejects a write. It is the authoritative duplicate signal.
type ConstraintViolationError struct {
	Field string
	Err   error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s", e.Field)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport-level failure worth one more try.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrStoreUnavailable)
}
