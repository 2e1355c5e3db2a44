// Package errs holds the error taxonomy shared by repositories, services and the HTTP layer.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentModification means the version token supplied by the caller is stale.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrInvalidTransition means a group lifecycle transition is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid state transition")
)

type base struct {
	message string
	err     error
}

func (b base) error() string {
	if b.err == nil {
		return b.message
	}
	return fmt.Sprintf("%s: %v", b.message, b.err)
}

func (b base) Unwrap() error { return b.err }

// Validation is returned when input is structurally wrong.
type Validation struct{ base }

func (e Validation) Error() string { return e.error() }

func NewValidation(message string, err ...error) Validation {
	return Validation{base{message: message, err: errors.Join(err...)}}
}

// NotFound is returned when the addressed entity does not exist.
type NotFound struct{ base }

func (e NotFound) Error() string { return e.error() }

func NewNotFound(message string, err ...error) NotFound {
	return NotFound{base{message: message, err: errors.Join(err...)}}
}

// Conflict is returned when the entity is not in a state that allows the operation.
type Conflict struct{ base }

func (e Conflict) Error() string { return e.error() }

func NewConflict(message string, err ...error) Conflict {
	return Conflict{base{message: message, err: errors.Join(err...)}}
}

// Locked is returned when a collection-level lock blocks a structural operation.
type Locked struct{ base }

func (e Locked) Error() string { return e.error() }

func NewLocked(message string, err ...error) Locked {
	return Locked{base{message: message, err: errors.Join(err...)}}
}

// ServiceUnavailable wraps transient infrastructure failures.
type ServiceUnavailable struct{ base }

func (e ServiceUnavailable) Error() string { return e.error() }

func NewServiceUnavailable(message string, err ...error) ServiceUnavailable {
	return ServiceUnavailable{base{message: message, err: errors.Join(err...)}}
}

// Unexpected is anything else.
type Unexpected struct{ base }

func (e Unexpected) Error() string { return e.error() }

func NewUnexpected(message string, err ...error) Unexpected {
	return Unexpected{base{message: message, err: errors.Join(err...)}}
}

func IsValidation(err error) bool {
	var e Validation
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e NotFound
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e Conflict
	return errors.As(err, &e)
}

func IsLocked(err error) bool {
	var e Locked
	return errors.As(err, &e)
}
