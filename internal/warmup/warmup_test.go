package warmup

import (
	"testing"
	"time"
)

func TestCurveCeiling(t *testing.T) {
	t.Parallel()

	curve := DefaultCurve()

	tests := []struct {
		day  int
		want int
	}{
		{day: -2, want: 5},
		{day: 0, want: 5},
		{day: 2, want: 5},
		{day: 3, want: 10},
		{day: 6, want: 20},
		{day: 29, want: 5 * 512},
		{day: 30, want: Unlimited},
		{day: 365, want: Unlimited},
	}

	for _, tt := range tests {
		if got := curve.Ceiling(tt.day); got != tt.want {
			t.Errorf("Ceiling(%d) = %d, want %d", tt.day, got, tt.want)
		}
	}
}

func TestCurveIsNonDecreasingWithFloor(t *testing.T) {
	t.Parallel()

	curves := []Curve{
		DefaultCurve(),
		{InitialVolume: 1, GrowthFactor: 1, StepDays: 1, RampDays: 10},
		{InitialVolume: 3, GrowthFactor: 1.5, StepDays: 2, RampDays: 60},
		{InitialVolume: 10, GrowthFactor: 3, StepDays: 7, RampDays: 0},
	}

	for _, curve := range curves {
		if err := curve.Validate(); err != nil {
			t.Fatalf("Validate(%+v) error = %v", curve, err)
		}

		prev := curve.Ceiling(0)
		if prev < curve.InitialVolume {
			t.Fatalf("Ceiling(0) = %d below floor %d", prev, curve.InitialVolume)
		}
		for d := 1; d <= 400; d++ {
			got := curve.Ceiling(d)
			if got < prev {
				t.Fatalf("curve %+v decreased at day %d: %d < %d", curve, d, got, prev)
			}
			prev = got
		}
	}
}

func TestCurveEffectiveCap(t *testing.T) {
	t.Parallel()

	curve := DefaultCurve()
	for d := 0; d < 60; d++ {
		want := min(50, curve.Ceiling(d))
		if got := curve.EffectiveCap(50, d); got != want {
			t.Fatalf("EffectiveCap(50, %d) = %d, want %d", d, got, want)
		}
	}
	if got := curve.EffectiveCap(50, 0); got != 5 {
		t.Fatalf("EffectiveCap(50, 0) = %d, want 5", got)
	}
	if got := curve.EffectiveCap(50, 100); got != 50 {
		t.Fatalf("EffectiveCap(50, 100) = %d, want 50", got)
	}
}

func TestCurveValidate(t *testing.T) {
	t.Parallel()

	bad := []Curve{
		{InitialVolume: 0, GrowthFactor: 2, StepDays: 1, RampDays: 1},
		{InitialVolume: 5, GrowthFactor: 0.5, StepDays: 1, RampDays: 1},
		{InitialVolume: 5, GrowthFactor: 2, StepDays: 0, RampDays: 1},
		{InitialVolume: 5, GrowthFactor: 2, StepDays: 1, RampDays: -1},
	}
	for _, curve := range bad {
		if err := curve.Validate(); err == nil {
			t.Errorf("Validate(%+v) expected error", curve)
		}
	}
}

func TestDaysSince(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*60*60)
	start := time.Date(2026, 3, 1, 23, 0, 0, 0, loc)
	now := time.Date(2026, 3, 4, 1, 0, 0, 0, loc)

	if got := DaysSince(start, now, loc); got != 3 {
		t.Fatalf("DaysSince() = %d, want 3", got)
	}
	if got := DaysSince(now, start, loc); got != -3 {
		t.Fatalf("DaysSince(reversed) = %d, want -3", got)
	}
}
