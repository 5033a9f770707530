// Package warmup computes the daily volume ceiling for a sender that is still
// building reputation with mailbox providers.
package warmup

import (
	"fmt"
	"math"
	"time"
)

// Unlimited is returned once the ramp is over.
const Unlimited = math.MaxInt

const (
	DefaultInitialVolume = 5
	DefaultGrowthFactor  = 2.0
	DefaultStepDays      = 3
	DefaultRampDays      = 30
)

// Curve is a step function of the number of days since warmup started.
type Curve struct {
	InitialVolume int
	GrowthFactor  float64
	StepDays      int
	RampDays      int
}

// DefaultCurve starts at 5 a day and doubles every 3 days for 30 days.
func DefaultCurve() Curve {
	return Curve{
		InitialVolume: DefaultInitialVolume,
		GrowthFactor:  DefaultGrowthFactor,
		StepDays:      DefaultStepDays,
		RampDays:      DefaultRampDays,
	}
}

// Validate rejects parameters that would make the curve decrease.
func (c Curve) Validate() error {
	if c.InitialVolume < 1 {
		return fmt.Errorf("warmup initial volume must be >= 1, got %d", c.InitialVolume)
	}
	if c.GrowthFactor < 1 {
		return fmt.Errorf("warmup growth factor must be >= 1, got %v", c.GrowthFactor)
	}
	if c.StepDays < 1 {
		return fmt.Errorf("warmup step days must be >= 1, got %d", c.StepDays)
	}
	if c.RampDays < 0 {
		return fmt.Errorf("warmup ramp days must be >= 0, got %d", c.RampDays)
	}
	return nil
}

// Ceiling returns the allowed daily volume on day d. It never goes below
// InitialVolume and never decreases as d grows.
func (c Curve) Ceiling(d int) int {
	if d < 0 {
		d = 0
	}
	if d >= c.RampDays {
		return Unlimited
	}

	steps := d / max(c.StepDays, 1)
	value := float64(max(c.InitialVolume, 1)) * math.Pow(math.Max(c.GrowthFactor, 1), float64(steps))
	if value >= float64(Unlimited) {
		return Unlimited
	}
	return int(math.Floor(value))
}

// EffectiveCap is min(limit, Ceiling(d)).
func (c Curve) EffectiveCap(limit int, d int) int {
	return min(limit, c.Ceiling(d))
}

// DaysSince counts whole local calendar days between start and now.
func DaysSince(start time.Time, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	s := start.In(loc)
	n := now.In(loc)
	startDay := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	nowDay := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(nowDay.Sub(startDay).Hours() / 24)
}
