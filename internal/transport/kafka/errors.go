package kafka

import (
	"errors"

	"offer-dispatch/internal/apperr"
)

// PermanentError marks a handler failure that a redelivery cannot fix.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error { return e.Err }

// Permanent returns a permanent error.
func Permanent(err error) error {
	return PermanentError{Err: err}
}

// Classify wraps errors that a retry cannot fix as permanent: bad input,
// a missing unit and uniqueness conflicts.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrConflict):
		return Permanent(err)
	default:
		return err
	}
}
