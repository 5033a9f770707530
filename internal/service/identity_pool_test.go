package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/warmup"
)

var poolNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestPool(t *testing.T, identities *fakeIdentityRepo, sendLogs *fakeSendLogRepo, cfg IdentityPoolConfig) *IdentityPool {
	t.Helper()

	pool, err := NewIdentityPool(identities, sendLogs, cfg, nil)
	if err != nil {
		t.Fatalf("NewIdentityPool() error = %v", err)
	}
	pool.now = fixedClock(poolNow)
	return pool
}

func TestIdentityPoolSelectPrefersLowestCountToday(t *testing.T) {
	t.Parallel()

	today := domain.DayKey(poolNow, time.UTC)
	earlier := poolNow.Add(-time.Hour)
	identities := &fakeIdentityRepo{
		listActiveFn: func(ctx context.Context) ([]domain.SendingIdentity, error) {
			return []domain.SendingIdentity{
				{ID: "a", Address: "a@example.com", Active: true, DailyLimit: 50, SendCount: 10, SendCountDate: today},
				// Yesterday's count reads as zero today.
				{ID: "b", Address: "b@example.com", Active: true, DailyLimit: 50, SendCount: 40, SendCountDate: "2026-03-09", LastUsedAt: &poolNow},
				{ID: "c", Address: "c@example.com", Active: true, DailyLimit: 50, SendCount: 0, SendCountDate: today, LastUsedAt: &earlier},
			}, nil
		},
	}

	pool := newTestPool(t, identities, &fakeSendLogRepo{}, IdentityPoolConfig{})

	selected, err := pool.Select(context.Background(), "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if selected.ID != "c" {
		t.Fatalf("selected = %s, want c (zero today, used least recently)", selected.ID)
	}
}

func TestIdentityPoolSelectSkipsCappedIdentities(t *testing.T) {
	t.Parallel()

	today := domain.DayKey(poolNow, time.UTC)
	identities := &fakeIdentityRepo{
		listActiveFn: func(ctx context.Context) ([]domain.SendingIdentity, error) {
			return []domain.SendingIdentity{
				{ID: "a", Active: true, DailyLimit: 5, SendCount: 5, SendCountDate: today},
				{ID: "b", Active: true, DailyLimit: 20, SendCount: 19, SendCountDate: today},
			}, nil
		},
	}

	pool := newTestPool(t, identities, &fakeSendLogRepo{}, IdentityPoolConfig{})

	selected, err := pool.Select(context.Background(), "")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if selected.ID != "b" {
		t.Fatalf("selected = %s, want b", selected.ID)
	}
}

func TestIdentityPoolSelectErrors(t *testing.T) {
	t.Parallel()

	today := domain.DayKey(poolNow, time.UTC)
	fallback := &domain.SendingIdentity{Address: "fallback@example.com", Provider: domain.ProviderCustom}

	testCases := []struct {
		name       string
		active     []domain.SendingIdentity
		total      int64
		fallback   *domain.SendingIdentity
		wantErr    error
		wantSender string
	}{
		{
			name:    "all identities capped",
			active:  []domain.SendingIdentity{{ID: "a", Active: true, DailyLimit: 1, SendCount: 1, SendCountDate: today}},
			total:   1,
			wantErr: domain.ErrQuotaExceeded,
		},
		{
			name:    "nothing configured",
			wantErr: domain.ErrNoIdentity,
		},
		{
			name:     "identities exist but none active",
			total:    2,
			fallback: fallback,
			wantErr:  domain.ErrNoIdentity,
		},
		{
			name:       "fallback when no identity exists",
			fallback:   fallback,
			wantSender: "fallback@example.com",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			identities := &fakeIdentityRepo{
				listActiveFn: func(ctx context.Context) ([]domain.SendingIdentity, error) { return tc.active, nil },
				countFn:      func(ctx context.Context) (int64, error) { return tc.total, nil },
			}
			pool := newTestPool(t, identities, &fakeSendLogRepo{}, IdentityPoolConfig{Fallback: tc.fallback})

			selected, err := pool.Select(context.Background(), "")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Select() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if selected.Address != tc.wantSender {
				t.Fatalf("selected = %s, want %s", selected.Address, tc.wantSender)
			}
		})
	}
}

func TestIdentityPoolSelectPinned(t *testing.T) {
	t.Parallel()

	today := domain.DayKey(poolNow, time.UTC)
	stored := map[string]domain.SendingIdentity{
		"ok":       {ID: "ok", Address: "ok@example.com", Active: true, DailyLimit: 10},
		"inactive": {ID: "inactive", Address: "off@example.com", Active: false, DailyLimit: 10},
		"capped":   {ID: "capped", Address: "full@example.com", Active: true, DailyLimit: 2, SendCount: 2, SendCountDate: today},
	}
	identities := &fakeIdentityRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.SendingIdentity, error) {
			identity, ok := stored[id]
			if !ok {
				return nil, domain.ErrNotFound
			}
			return &identity, nil
		},
		listActiveFn: func(ctx context.Context) ([]domain.SendingIdentity, error) {
			t.Fatal("pinned selection must not scan the pool")
			return nil, nil
		},
	}
	pool := newTestPool(t, identities, &fakeSendLogRepo{}, IdentityPoolConfig{})

	if selected, err := pool.Select(context.Background(), "ok"); err != nil || selected.ID != "ok" {
		t.Fatalf("Select(ok) = %v, %v", selected, err)
	}
	if _, err := pool.Select(context.Background(), "inactive"); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("Select(inactive) error = %v, want ErrNoIdentity", err)
	}
	if _, err := pool.Select(context.Background(), "capped"); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("Select(capped) error = %v, want ErrQuotaExceeded", err)
	}
	if _, err := pool.Select(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Select(missing) error = %v, want ErrNotFound", err)
	}
}

func TestIdentityPoolIdentityCapAppliesWarmup(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, &fakeIdentityRepo{}, &fakeSendLogRepo{}, IdentityPoolConfig{})

	started := poolNow.AddDate(0, 0, -7)
	testCases := []struct {
		name     string
		identity domain.SendingIdentity
		want     int
	}{
		{name: "no warmup", identity: domain.SendingIdentity{DailyLimit: 100}, want: 100},
		{name: "zero limit without warmup", identity: domain.SendingIdentity{}, want: warmup.Unlimited},
		// day 7 with step 3 and growth 2: 5 * 2^2
		{name: "warmup from start date", identity: domain.SendingIdentity{DailyLimit: 100, WarmupEnabled: true, WarmupStartedAt: &started}, want: 20},
		{name: "warmup from creation", identity: domain.SendingIdentity{DailyLimit: 100, WarmupEnabled: true, CreatedAt: poolNow}, want: 5},
		{name: "limit below curve", identity: domain.SendingIdentity{DailyLimit: 3, WarmupEnabled: true, CreatedAt: poolNow}, want: 3},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := pool.IdentityCap(tc.identity); got != tc.want {
				t.Fatalf("IdentityCap() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestIdentityPoolCheckQuota(t *testing.T) {
	t.Parallel()

	today := domain.DayKey(poolNow, time.UTC)

	testCases := []struct {
		name        string
		globalLimit int
		warmupStart time.Time
		globalSent  int
		identity    domain.SendingIdentity
		wantErr     bool
	}{
		{name: "room left", globalLimit: 10, globalSent: 9, identity: domain.SendingIdentity{ID: "a", DailyLimit: 5}},
		{name: "global exhausted", globalLimit: 10, globalSent: 10, identity: domain.SendingIdentity{ID: "a"}, wantErr: true},
		{name: "global disabled", globalLimit: 0, globalSent: 10_000, identity: domain.SendingIdentity{ID: "a"}},
		{name: "global warmup caps below limit", globalLimit: 500, warmupStart: poolNow, globalSent: 5, identity: domain.SendingIdentity{ID: "a"}, wantErr: true},
		{name: "identity exhausted", globalLimit: 10, identity: domain.SendingIdentity{ID: "a", DailyLimit: 2, SendCount: 2, SendCountDate: today}, wantErr: true},
		{name: "fallback skips identity cap", globalLimit: 10, identity: domain.SendingIdentity{DailyLimit: 1, SendCount: 5, SendCountDate: today}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sendLogs := &fakeSendLogRepo{
				countOnFn: func(ctx context.Context, day string) (int, error) {
					if day != today {
						t.Fatalf("CountOn day = %s, want %s", day, today)
					}
					return tc.globalSent, nil
				},
			}
			pool := newTestPool(t, &fakeIdentityRepo{}, sendLogs, IdentityPoolConfig{
				GlobalDailyLimit:  tc.globalLimit,
				GlobalWarmupStart: tc.warmupStart,
			})

			err := pool.CheckQuota(context.Background(), tc.identity)
			if tc.wantErr && !errors.Is(err, domain.ErrQuotaExceeded) {
				t.Fatalf("CheckQuota() error = %v, want ErrQuotaExceeded", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("CheckQuota() error = %v", err)
			}
		})
	}
}

func TestIdentityPoolRecordSendUsesLocalDay(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	var identityDay, globalDay string
	identities := &fakeIdentityRepo{
		recordSendFn: func(ctx context.Context, id string, day string, at time.Time) error {
			identityDay = day
			return nil
		},
	}
	sendLogs := &fakeSendLogRepo{
		incrementFn: func(ctx context.Context, day string, at time.Time) error {
			globalDay = day
			return nil
		},
	}

	pool := newTestPool(t, identities, sendLogs, IdentityPoolConfig{Location: loc})
	// 02:00 UTC is still the previous evening in New York.
	pool.now = fixedClock(time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC))

	if err := pool.RecordSend(context.Background(), domain.SendingIdentity{ID: "a"}); err != nil {
		t.Fatalf("RecordSend() error = %v", err)
	}
	if identityDay != "2026-03-09" || globalDay != "2026-03-09" {
		t.Fatalf("days = %s/%s, want 2026-03-09", identityDay, globalDay)
	}
}

func TestIdentityPoolRecordSendFallbackOnlyCountsGlobally(t *testing.T) {
	t.Parallel()

	identities := &fakeIdentityRepo{
		recordSendFn: func(ctx context.Context, id string, day string, at time.Time) error {
			t.Fatal("fallback identity has no row to count on")
			return nil
		},
	}
	increments := 0
	sendLogs := &fakeSendLogRepo{
		incrementFn: func(ctx context.Context, day string, at time.Time) error {
			increments++
			return nil
		},
	}

	pool := newTestPool(t, identities, sendLogs, IdentityPoolConfig{})
	if err := pool.RecordSend(context.Background(), domain.SendingIdentity{Address: "fallback@example.com"}); err != nil {
		t.Fatalf("RecordSend() error = %v", err)
	}
	if increments != 1 {
		t.Fatalf("global increments = %d, want 1", increments)
	}
}

func TestNewIdentityPoolRejectsInvalidCurve(t *testing.T) {
	t.Parallel()

	_, err := NewIdentityPool(&fakeIdentityRepo{}, &fakeSendLogRepo{}, IdentityPoolConfig{
		Curve: warmup.Curve{InitialVolume: 0, GrowthFactor: 2, StepDays: 1},
	}, nil)
	if err == nil {
		t.Fatal("expected invalid curve error")
	}
}

func TestNewIdentityPoolDefaultsZeroCurve(t *testing.T) {
	t.Parallel()

	pool, err := NewIdentityPool(&fakeIdentityRepo{}, &fakeSendLogRepo{}, IdentityPoolConfig{}, nil)
	if err != nil {
		t.Fatalf("NewIdentityPool() error = %v", err)
	}
	if pool.cfg.Curve != warmup.DefaultCurve() {
		t.Fatalf("curve = %+v, want default", pool.cfg.Curve)
	}
}
