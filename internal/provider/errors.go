package provider

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// ProviderError is a classified transport failure. errors.Is matches it against
// the domain sentinel of its category.
type ProviderError struct {
	Category domain.BounceType
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, string(e.Category))
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ProviderError) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == e.Category.Err()
}

// Detail is the failure text without the category prefix.
func (e *ProviderError) Detail() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return strings.TrimSpace(e.Cause.Error())
	}
	return strings.TrimSpace(e.Message)
}

// NewError classifies a raw transport error.
func NewError(message string, cause error) *ProviderError {
	category := domain.BounceOther
	switch {
	case cause == nil:
		category = Classify(message)
	case errors.Is(cause, context.DeadlineExceeded):
		category = domain.BounceTimeout
	default:
		var netErr net.Error
		if errors.As(cause, &netErr) && netErr.Timeout() {
			category = domain.BounceTimeout
		} else {
			category = Classify(cause.Error())
		}
	}

	return &ProviderError{
		Category: category,
		Message:  message,
		Cause:    cause,
	}
}

// CategoryOf returns the category of a ProviderError anywhere in the chain.
func CategoryOf(err error) (domain.BounceType, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Category, true
	}
	return "", false
}
