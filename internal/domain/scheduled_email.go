package domain

import (
	"fmt"
	"strings"
	"time"
)

type ScheduledEmailStatus string

const (
	ScheduledEmailPending   ScheduledEmailStatus = "pending"
	ScheduledEmailSent      ScheduledEmailStatus = "sent"
	ScheduledEmailFailed    ScheduledEmailStatus = "failed"
	ScheduledEmailCancelled ScheduledEmailStatus = "cancelled"
)

func (s ScheduledEmailStatus) String() string { return string(s) }

func (s ScheduledEmailStatus) IsValid() bool {
	switch s {
	case ScheduledEmailPending, ScheduledEmailSent, ScheduledEmailFailed, ScheduledEmailCancelled:
		return true
	}
	return false
}

func (s ScheduledEmailStatus) IsTerminal() bool {
	return s == ScheduledEmailSent || s == ScheduledEmailFailed || s == ScheduledEmailCancelled
}

func ParseScheduledEmailStatus(s string) (ScheduledEmailStatus, error) {
	st := ScheduledEmailStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid scheduled email status %q", ErrValidation, s)
	}
	return st, nil
}

// ScheduledEmail is a message queued for a later send. Its body already carries
// the compliance footer.
type ScheduledEmail struct {
	ID            string
	AccountID     *string
	CampaignID    *string
	Recipient     string
	Subject       string
	Body          string
	Variant       string
	TrackingToken string
	ScheduledAt   time.Time
	Status        ScheduledEmailStatus
	SentAt        *time.Time
	Error         string
	IdentityID    *string
	SequenceID    *string
	SequenceStep  int
	TaskID        *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e *ScheduledEmail) Validate() error {
	if strings.TrimSpace(e.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if e.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}
	if e.SequenceStep < 0 {
		return fmt.Errorf("%w: sequenceStep must be >= 0", ErrValidation)
	}
	return nil
}

// FailureText renders a classified failure as "category: detail".
func FailureText(category BounceType, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return string(category)
	}
	return fmt.Sprintf("%s: %s", category, detail)
}
