package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/warmup"
)

func newTestOperator(t *testing.T, identities *fakeIdentityRepo, sendLogs *fakeSendLogRepo, suppressions *fakeSuppressionRepo, transport *fakeTransport, cfg IdentityPoolConfig) *OperatorService {
	t.Helper()

	pool := newTestPool(t, identities, sendLogs, cfg)
	svc := NewOperatorService(identities, sendLogs, suppressions, pool, transport, nil)
	svc.now = fixedClock(poolNow)
	return svc
}

func TestOperatorImportIdentitiesStartsWarmup(t *testing.T) {
	t.Parallel()

	started := poolNow.Add(-72 * time.Hour)
	var upserted []domain.SendingIdentity
	identities := &fakeIdentityRepo{
		upsertFn: func(ctx context.Context, i *domain.SendingIdentity) error {
			upserted = append(upserted, *i)
			return nil
		},
	}
	svc := newTestOperator(t, identities, &fakeSendLogRepo{}, &fakeSuppressionRepo{}, &fakeTransport{}, IdentityPoolConfig{})

	count, err := svc.ImportIdentities(context.Background(), []domain.SendingIdentity{
		{Address: "a@agency.example", Provider: domain.ProviderGmail, WarmupEnabled: true},
		{Address: "b@agency.example", Provider: domain.ProviderZoho, WarmupEnabled: true, WarmupStartedAt: &started},
		{Address: "c@agency.example", Provider: domain.ProviderCustom},
	})
	if err != nil {
		t.Fatalf("ImportIdentities() error = %v", err)
	}
	if count != 3 || len(upserted) != 3 {
		t.Fatalf("imported %d, upserted %d", count, len(upserted))
	}
	if upserted[0].WarmupStartedAt == nil || !upserted[0].WarmupStartedAt.Equal(poolNow) {
		t.Fatalf("first identity warmup start = %v, want now", upserted[0].WarmupStartedAt)
	}
	if !upserted[1].WarmupStartedAt.Equal(started) {
		t.Fatal("an existing warmup start must be kept")
	}
	if upserted[2].WarmupStartedAt != nil {
		t.Fatal("warmup start is only set when warmup is enabled")
	}
}

func TestOperatorImportIdentitiesStopsAtInvalid(t *testing.T) {
	t.Parallel()

	svc := newTestOperator(t, &fakeIdentityRepo{}, &fakeSendLogRepo{}, &fakeSuppressionRepo{}, &fakeTransport{}, IdentityPoolConfig{})
	count, err := svc.ImportIdentities(context.Background(), []domain.SendingIdentity{
		{Address: "a@agency.example", Provider: domain.ProviderGmail},
		{Address: "b@agency.example", Provider: "aol"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ImportIdentities() error = %v, want ErrValidation", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestOperatorUsage(t *testing.T) {
	t.Parallel()

	today := domain.DayKey(poolNow, time.UTC)
	identities := &fakeIdentityRepo{
		listFn: func(ctx context.Context) ([]domain.SendingIdentity, error) {
			return []domain.SendingIdentity{
				{ID: "a", Address: "a@agency.example", DailyLimit: 50, SendCount: 12, SendCountDate: today},
				{ID: "b", Address: "b@agency.example", DailyLimit: 50, SendCount: 3, SendCountDate: today, WarmupEnabled: true, WarmupStartedAt: &poolNow},
				{ID: "c", Address: "c@agency.example", SendCount: 7, SendCountDate: "2026-03-01"},
			}, nil
		},
	}
	sendLogs := &fakeSendLogRepo{
		countOnFn: func(ctx context.Context, day string) (int, error) {
			if day != today {
				t.Fatalf("day = %s", day)
			}
			return 15, nil
		},
	}
	svc := newTestOperator(t, identities, sendLogs, &fakeSuppressionRepo{}, &fakeTransport{}, IdentityPoolConfig{GlobalDailyLimit: 40})

	usage, err := svc.IdentityUsage(context.Background())
	if err != nil {
		t.Fatalf("IdentityUsage() error = %v", err)
	}
	want := []struct {
		sent, cap, remaining int
	}{
		{sent: 12, cap: 50, remaining: 38},
		{sent: 3, cap: warmup.DefaultInitialVolume, remaining: 2},
		{sent: 0, cap: warmup.Unlimited, remaining: warmup.Unlimited},
	}
	for i, w := range want {
		got := usage[i]
		if got.SentToday != w.sent || got.Cap != w.cap || got.Remaining != w.remaining {
			t.Fatalf("usage[%d] = %+v, want %+v", i, got, w)
		}
	}

	global, err := svc.GlobalUsage(context.Background())
	if err != nil {
		t.Fatalf("GlobalUsage() error = %v", err)
	}
	if *global != (GlobalUsage{Day: today, Sent: 15, Cap: 40, Remaining: 25}) {
		t.Fatalf("global = %+v", global)
	}
}

func TestOperatorVerifyAndDeactivate(t *testing.T) {
	t.Parallel()

	deactivated := ""
	identities := &fakeIdentityRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.SendingIdentity, error) {
			return &domain.SendingIdentity{ID: id, Address: id + "@agency.example", Active: true}, nil
		},
		deactivateFn: func(ctx context.Context, id string) error {
			deactivated = id
			return nil
		},
	}
	transport := &fakeTransport{
		verifyFn: func(ctx context.Context, identity domain.SendingIdentity) error {
			if identity.ID == "bad" {
				return provider.NewError("", errors.New("535 5.7.8 authentication failed"))
			}
			return nil
		},
	}
	svc := newTestOperator(t, identities, &fakeSendLogRepo{}, &fakeSuppressionRepo{}, transport, IdentityPoolConfig{})

	if err := svc.VerifyIdentity(context.Background(), "good"); err != nil {
		t.Fatalf("VerifyIdentity(good) error = %v", err)
	}
	if err := svc.VerifyIdentity(context.Background(), "bad"); !errors.Is(err, domain.ErrAuthFailure) {
		t.Fatalf("VerifyIdentity(bad) error = %v, want ErrAuthFailure", err)
	}
	if err := svc.DeactivateIdentity(context.Background(), "old"); err != nil || deactivated != "old" {
		t.Fatalf("DeactivateIdentity() error = %v, deactivated = %q", err, deactivated)
	}
}

func TestOperatorSuppress(t *testing.T) {
	t.Parallel()

	var entry *domain.SuppressionEntry
	suppressions := &fakeSuppressionRepo{
		addFn: func(ctx context.Context, s *domain.SuppressionEntry) (bool, error) {
			entry = s
			return true, nil
		},
	}
	svc := newTestOperator(t, &fakeIdentityRepo{}, &fakeSendLogRepo{}, suppressions, &fakeTransport{}, IdentityPoolConfig{})

	added, err := svc.Suppress(context.Background(), " Someone@Example.COM ", "", "")
	if err != nil || !added {
		t.Fatalf("Suppress() = %v, %v", added, err)
	}
	if entry.Address != "someone@example.com" || entry.Reason != domain.SuppressionManual || entry.Source != "operator" {
		t.Fatalf("entry = %+v", entry)
	}

	if _, err := svc.Suppress(context.Background(), "someone@example.com", "spite", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Suppress(bad reason) error = %v, want ErrValidation", err)
	}
	if _, err := svc.Suppress(context.Background(), "not-an-address", "", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Suppress(bad address) error = %v, want ErrValidation", err)
	}
}
