package domain

import (
	"fmt"
	"strings"
	"time"
)

type SuppressionReason string

const (
	SuppressionUnsubscribe SuppressionReason = "unsubscribe"
	SuppressionHardBounce  SuppressionReason = "hard_bounce"
	SuppressionComplaint   SuppressionReason = "complaint"
	SuppressionManual      SuppressionReason = "manual"
)

func (r SuppressionReason) IsValid() bool {
	switch r {
	case SuppressionUnsubscribe, SuppressionHardBounce, SuppressionComplaint, SuppressionManual:
		return true
	}
	return false
}

func ParseSuppressionReason(s string) (SuppressionReason, error) {
	r := SuppressionReason(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return SuppressionManual, nil
	}
	if !r.IsValid() {
		return "", fmt.Errorf("%w: invalid suppression reason %q", ErrValidation, s)
	}
	return r, nil
}

// SuppressionEntry excludes an address from every future send. Entries are never removed.
type SuppressionEntry struct {
	ID        string
	Address   string
	Reason    SuppressionReason
	Source    string
	CreatedAt time.Time
}

// DailySendCounter counts successful sends for one local calendar day.
type DailySendCounter struct {
	Day       string
	Count     int
	UpdatedAt time.Time
}

const DayLayout = "2006-01-02"

// DayKey formats t as the calendar day it falls on in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// NextDayStart returns midnight after t in loc.
func NextDayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
