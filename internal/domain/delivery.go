package domain

import (
	"fmt"
	"strings"
	"time"
)

type DeliveryStatus string

const (
	DeliveryDrafted   DeliveryStatus = "drafted"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryOpened    DeliveryStatus = "opened"
	DeliveryClicked   DeliveryStatus = "clicked"
	DeliveryResponded DeliveryStatus = "responded"
	DeliveryBounced   DeliveryStatus = "bounced"
)

func (s DeliveryStatus) String() string { return string(s) }

// IsOutstanding reports whether the message is still awaiting an outcome.
func (s DeliveryStatus) IsOutstanding() bool {
	return s == DeliveryDrafted || s == DeliverySent
}

// BounceType is the category a transport failure is classified into.
type BounceType string

const (
	BounceHard        BounceType = "hard"
	BounceSoft        BounceType = "soft"
	BounceAuth        BounceType = "auth"
	BounceRateLimited BounceType = "rate_limited"
	BounceTimeout     BounceType = "timeout"
	BounceOther       BounceType = "other"
)

func (b BounceType) String() string { return string(b) }

// Err returns the sentinel error a category maps onto.
func (b BounceType) Err() error {
	switch b {
	case BounceHard:
		return ErrTransportHard
	case BounceSoft:
		return ErrTransportSoft
	case BounceAuth:
		return ErrAuthFailure
	case BounceRateLimited:
		return ErrTransportRateLimited
	case BounceTimeout:
		return ErrTransportTimeout
	default:
		return ErrTransportUnknown
	}
}

// DeliveryRecord is the outbound message as sent, plus its engagement timestamps.
type DeliveryRecord struct {
	ID               string
	TrackingToken    string
	AccountID        *string
	CampaignID       *string
	ScheduledEmailID *string
	IdentityID       *string
	Recipient        string
	Subject          string
	Body             string
	Variant          string
	Status           DeliveryStatus
	BounceType       BounceType
	Error            string
	SentAt           *time.Time
	OpenedAt         *time.Time
	ClickedAt        *time.Time
	RespondedAt      *time.Time
	BouncedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (d *DeliveryRecord) Validate() error {
	if strings.TrimSpace(d.TrackingToken) == "" {
		return fmt.Errorf("%w: tracking token is required", ErrValidation)
	}
	if strings.TrimSpace(d.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	return nil
}
