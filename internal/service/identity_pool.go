package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"github.com/kursadbilgin/outreach-engine/internal/warmup"
	"go.uber.org/zap"
)

// IdentityPoolConfig carries the sending quotas shared by every identity.
type IdentityPoolConfig struct {
	// GlobalDailyLimit caps sends across all identities per local day. Zero disables it.
	GlobalDailyLimit int
	Curve            warmup.Curve
	// GlobalWarmupStart applies the curve to the global limit when set.
	GlobalWarmupStart time.Time
	// Fallback is used only when no identity has been configured at all.
	Fallback *domain.SendingIdentity
	Location *time.Location
}

// IdentityPool picks the sender for each outgoing email and enforces daily quotas.
type IdentityPool struct {
	identities repository.IdentityRepository
	sendLogs   repository.SendLogRepository
	cfg        IdentityPoolConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewIdentityPool(
	identities repository.IdentityRepository,
	sendLogs repository.SendLogRepository,
	cfg IdentityPoolConfig,
	logger *zap.Logger,
) (*IdentityPool, error) {
	if identities == nil || sendLogs == nil {
		return nil, fmt.Errorf("identity pool requires identity and send log repositories")
	}
	if cfg.GlobalDailyLimit < 0 {
		return nil, fmt.Errorf("global daily limit must be >= 0, got %d", cfg.GlobalDailyLimit)
	}
	if cfg.Curve == (warmup.Curve{}) {
		cfg.Curve = warmup.DefaultCurve()
	}
	if err := cfg.Curve.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IdentityPool{
		identities: identities,
		sendLogs:   sendLogs,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Today is the local day key counters are kept under.
func (p *IdentityPool) Today() string {
	return domain.DayKey(p.now(), p.cfg.Location)
}

// Select returns the identity the next email goes out from. A pinned identity is
// used as is; otherwise the active identity with the fewest sends today wins.
func (p *IdentityPool) Select(ctx context.Context, pinnedID string) (*domain.SendingIdentity, error) {
	today := p.Today()

	if pinnedID = strings.TrimSpace(pinnedID); pinnedID != "" {
		identity, err := p.identities.GetByID(ctx, pinnedID)
		if err != nil {
			return nil, fmt.Errorf("failed to load identity %s: %w", pinnedID, err)
		}
		if !identity.Active {
			return nil, fmt.Errorf("%w: identity %s is inactive", domain.ErrNoIdentity, identity.Address)
		}
		if identity.CountOn(today) >= p.IdentityCap(*identity) {
			return nil, fmt.Errorf("%w: identity %s reached its daily cap", domain.ErrQuotaExceeded, identity.Address)
		}
		return identity, nil
	}

	active, err := p.identities.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active identities: %w", err)
	}

	if len(active) == 0 {
		total, err := p.identities.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count identities: %w", err)
		}
		if total == 0 && p.cfg.Fallback != nil {
			fallback := *p.cfg.Fallback
			return &fallback, nil
		}
		return nil, domain.ErrNoIdentity
	}

	available := make([]domain.SendingIdentity, 0, len(active))
	for _, identity := range active {
		if identity.CountOn(today) < p.IdentityCap(identity) {
			available = append(available, identity)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("%w: all %d identities reached their daily cap", domain.ErrQuotaExceeded, len(active))
	}

	sort.SliceStable(available, func(i, j int) bool {
		ci, cj := available[i].CountOn(today), available[j].CountOn(today)
		if ci != cj {
			return ci < cj
		}
		return lastUsedBefore(available[i].LastUsedAt, available[j].LastUsedAt)
	})

	selected := available[0]
	return &selected, nil
}

// IdentityCap is the number of sends identity may make today. A zero daily limit
// leaves only the warmup ceiling in force.
func (p *IdentityPool) IdentityCap(identity domain.SendingIdentity) int {
	limit := identity.DailyLimit
	if limit <= 0 {
		limit = warmup.Unlimited
	}
	if !identity.WarmupEnabled {
		return limit
	}

	start := identity.CreatedAt
	if identity.WarmupStartedAt != nil {
		start = *identity.WarmupStartedAt
	}
	return p.cfg.Curve.EffectiveCap(limit, warmup.DaysSince(start, p.now(), p.cfg.Location))
}

// GlobalCap is the cross-identity limit for today.
func (p *IdentityPool) GlobalCap() int {
	limit := p.cfg.GlobalDailyLimit
	if limit <= 0 {
		limit = warmup.Unlimited
	}
	if p.cfg.GlobalWarmupStart.IsZero() {
		return limit
	}
	return p.cfg.Curve.EffectiveCap(limit, warmup.DaysSince(p.cfg.GlobalWarmupStart, p.now(), p.cfg.Location))
}

// CheckQuota fails with ErrQuotaExceeded when either the global counter or the
// identity counter has no room left for today.
func (p *IdentityPool) CheckQuota(ctx context.Context, identity domain.SendingIdentity) error {
	today := p.Today()

	sent, err := p.sendLogs.CountOn(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to read global send count: %w", err)
	}
	if limit := p.GlobalCap(); sent >= limit {
		return fmt.Errorf("%w: global limit of %d reached for %s", domain.ErrQuotaExceeded, limit, today)
	}

	if identity.ID == "" {
		return nil
	}
	if limit := p.IdentityCap(identity); identity.CountOn(today) >= limit {
		return fmt.Errorf("%w: identity %s reached its cap of %d", domain.ErrQuotaExceeded, identity.Address, limit)
	}
	return nil
}

// RecordSend bumps the identity counter and the global counter for today.
func (p *IdentityPool) RecordSend(ctx context.Context, identity domain.SendingIdentity) error {
	now := p.now()
	today := domain.DayKey(now, p.cfg.Location)

	if identity.ID != "" {
		if err := p.identities.RecordSend(ctx, identity.ID, today, now); err != nil {
			return fmt.Errorf("failed to record identity send: %w", err)
		}
	}
	if err := p.sendLogs.Increment(ctx, today, now); err != nil {
		return fmt.Errorf("failed to increment global send count: %w", err)
	}
	return nil
}

// Deactivate takes an identity out of rotation. The fallback identity has no row
// and is left alone.
func (p *IdentityPool) Deactivate(ctx context.Context, identity domain.SendingIdentity) error {
	if identity.ID == "" {
		return nil
	}
	if err := p.identities.Deactivate(ctx, identity.ID); err != nil {
		return fmt.Errorf("failed to deactivate identity %s: %w", identity.Address, err)
	}
	p.logger.Warn("sending identity deactivated",
		zap.String("identityId", identity.ID),
		zap.String("address", identity.Address),
	)
	return nil
}

func lastUsedBefore(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	}
	return a.Before(*b)
}
