package domain

import (
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeAddress validates a single mailbox address and returns its canonical
// lower-case form, so suppression lookups match regardless of how it was typed.
func NormalizeAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(norm.NFKC.String(raw))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email address is required", ErrValidation)
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid email address %q", ErrValidation, raw)
	}

	addr := strings.ToLower(parsed.Address)
	if strings.Count(addr, "@") != 1 || strings.HasSuffix(addr, "@") {
		return "", fmt.Errorf("%w: invalid email address %q", ErrValidation, raw)
	}
	return addr, nil
}
