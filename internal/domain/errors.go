package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the moderation packages matches exactly
// one of these with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already decided")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError reports a decision attempt on an item that is no longer
// pending.
type ConflictError struct {
	QueueID string
	Current Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("queue item %s already decided: status %s", e.QueueID, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFound wraps ErrNotFound for a queue id.
func NotFound(queueID string) error {
	return fmt.Errorf("queue item %s: %w", queueID, ErrNotFound)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// Unavailable marks err as a transient storage failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// IsRetryable reports whether the caller may retry the operation. Only
// storage outages qualify; validation, conflict and not-found never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
