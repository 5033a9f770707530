package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus represents the lifecycle of an outreach campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted:
		return true
	}
	return false
}

func ParseCampaignStatus(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign status %q", ErrValidation, s)
	}
	return st, nil
}

// Campaign groups the delivery records of one bulk send.
type Campaign struct {
	ID        string
	Name      string
	Status    CampaignStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Variant is one subject/body alternative of a bulk send.
type Variant struct {
	Name    string
	Subject string
	Body    string
}

// Account is the business contact an email is addressed to.
type Account struct {
	ID           string
	Name         string
	Email        string
	Website      string
	AuditScore   *int
	AuditSummary string
	AuditedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: account name is required", ErrValidation)
	}
	return nil
}
