package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthError reports bad credentials or a missing session.
type AuthError struct{ Msg string }

func (e *AuthError) Error() string { return e.Msg }

// NotFoundError reports a missing (or foreign) entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a uniqueness violation such as a reused email.
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

// PersistenceError wraps an unexpected store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err unless it already belongs to the taxonomy.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsDomainError reports whether err is one of the typed errors above.
func IsDomainError(err error) bool {
	var (
		v *ValidationError
		a *AuthError
		n *NotFoundError
		c *ConflictError
		p *PersistenceError
	)
	return errors.As(err, &v) || errors.As(err, &a) || errors.As(err, &n) ||
		errors.As(err, &c) || errors.As(err, &p)
}
