package apperr

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when the input fails domain validation.
var ErrValidation = errors.New("validation error")

// ErrConflict indicates a uniqueness conflict (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested unit or candidate does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidToken is returned for malformed, tampered or mismatched offer tokens.
var ErrInvalidToken = errors.New("invalid token")

// ErrAlreadyResolved means a conditional write lost the race. It is a
// concurrency outcome, not a fault.
var ErrAlreadyResolved = errors.New("already resolved")

// ErrExpired is returned when a token or the offer it refers to is past its window.
var ErrExpired = errors.New("expired")

// ErrNoCandidates signals an exhausted candidate pool. It is absorbed into
// the admin_escalated state and never returned to the triggering caller.
var ErrNoCandidates = errors.New("no candidates available")

// ErrExternalSync indicates that a dispatch-provider call failed.
var ErrExternalSync = errors.New("external sync failure")

// SyncError describes a failed call to the external dispatch provider.
type SyncError struct {
	Op         string
	Container  string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("dispatch provider %s %s", e.Op, e.Container)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes every SyncError match ErrExternalSync.
func (e *SyncError) Is(target error) bool { return target == ErrExternalSync }

func (e *SyncError) Unwrap() error { return e.Err }
