package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderPreset selects SMTP host/port defaults for well-known mailbox providers.
type ProviderPreset string

const (
	ProviderGmail   ProviderPreset = "gmail"
	ProviderOutlook ProviderPreset = "outlook"
	ProviderZoho    ProviderPreset = "zoho"
	ProviderYahoo   ProviderPreset = "yahoo"
	ProviderCustom  ProviderPreset = "custom"
)

func (p ProviderPreset) IsValid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderZoho, ProviderYahoo, ProviderCustom:
		return true
	}
	return false
}

func ParseProviderPreset(s string) (ProviderPreset, error) {
	p := ProviderPreset(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProviderCustom, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid provider %q", ErrValidation, s)
	}
	return p, nil
}

// SendingIdentity is a credentialed sender with its own daily quota.
type SendingIdentity struct {
	ID              string
	Name            string
	Provider        ProviderPreset
	Address         string
	SMTPHost        string
	SMTPPort        int
	Username        string
	Secret          string `json:"-"`
	DailyLimit      int
	SendCount       int
	SendCountDate   string
	Active          bool
	WarmupEnabled   bool
	WarmupStartedAt *time.Time
	LastUsedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CountOn returns the send count for day. A count recorded on another day is stale and reads as zero.
func (i SendingIdentity) CountOn(day string) int {
	if i.SendCountDate != day {
		return 0
	}
	return i.SendCount
}

func (i *SendingIdentity) Validate() error {
	if strings.TrimSpace(i.Address) == "" {
		return fmt.Errorf("%w: identity address is required", ErrValidation)
	}
	if !i.Provider.IsValid() {
		return fmt.Errorf("%w: invalid provider %q", ErrValidation, i.Provider)
	}
	if i.DailyLimit < 0 {
		return fmt.Errorf("%w: dailyLimit must be >= 0", ErrValidation)
	}
	if i.SMTPPort < 0 || i.SMTPPort > 65535 {
		return fmt.Errorf("%w: invalid smtp port %d", ErrValidation, i.SMTPPort)
	}
	return nil
}
