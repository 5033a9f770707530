package domain

import (
	"context"
	"errors"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	ErrSuppressed           = errors.New("recipient is suppressed")
	ErrQuotaExceeded        = errors.New("daily send quota exceeded")
	ErrNoIdentity           = errors.New("no sending identity available")
	ErrCancelled            = errors.New("scheduled email was cancelled")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrLivenessExceeded     = errors.New("liveness window exceeded")

	ErrTransportHard        = errors.New("permanent delivery failure")
	ErrTransportSoft        = errors.New("temporary delivery failure")
	ErrTransportTimeout     = errors.New("delivery timed out")
	ErrTransportRateLimited = errors.New("delivery rate limited by provider")
	ErrTransportUnknown     = errors.New("unclassified delivery failure")
	ErrAuthFailure          = errors.New("sender authentication failed")
)

// IsRetryable reports whether a failed task should be attempted again.
// Unrecognised errors are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrSuppressed),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCancelled),
		errors.Is(err, ErrTransportHard),
		errors.Is(err, ErrAuthFailure),
		errors.Is(err, ErrNoIdentity):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}

	return true
}
