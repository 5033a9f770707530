package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

// IdentityUsage is today's standing of one identity against its cap.
type IdentityUsage struct {
	Identity  domain.SendingIdentity
	SentToday int
	Cap       int
	Remaining int
}

// GlobalUsage is today's standing of the global counter.
type GlobalUsage struct {
	Day       string
	Sent      int
	Cap       int
	Remaining int
}

// OperatorService backs the admin endpoints and the CLI.
type OperatorService struct {
	identities   repository.IdentityRepository
	sendLogs     repository.SendLogRepository
	suppressions repository.SuppressionRepository
	pool         *IdentityPool
	transport    provider.Transport
	logger       *zap.Logger
	now          func() time.Time
}

func NewOperatorService(
	identities repository.IdentityRepository,
	sendLogs repository.SendLogRepository,
	suppressions repository.SuppressionRepository,
	pool *IdentityPool,
	transport provider.Transport,
	logger *zap.Logger,
) *OperatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorService{
		identities:   identities,
		sendLogs:     sendLogs,
		suppressions: suppressions,
		pool:         pool,
		transport:    transport,
		logger:       logger,
		now:          time.Now,
	}
}

// ImportIdentities upserts identities by address. Warmup starts the first time an
// identity is imported with it enabled.
func (s *OperatorService) ImportIdentities(ctx context.Context, identities []domain.SendingIdentity) (int, error) {
	now := s.now().UTC()
	for i := range identities {
		identity := identities[i]
		if err := identity.Validate(); err != nil {
			return i, err
		}
		if identity.WarmupEnabled && identity.WarmupStartedAt == nil {
			identity.WarmupStartedAt = &now
		}
		if err := s.identities.Upsert(ctx, &identity); err != nil {
			return i, fmt.Errorf("failed to upsert identity %s: %w", identity.Address, err)
		}
	}

	s.logger.Info("identities imported", zap.Int("count", len(identities)))
	return len(identities), nil
}

// IdentityUsage reports every identity's send count against its effective cap.
func (s *OperatorService) IdentityUsage(ctx context.Context) ([]IdentityUsage, error) {
	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	today := s.pool.Today()
	usage := make([]IdentityUsage, 0, len(identities))
	for _, identity := range identities {
		sent := identity.CountOn(today)
		limit := s.pool.IdentityCap(identity)
		usage = append(usage, IdentityUsage{
			Identity:  identity,
			SentToday: sent,
			Cap:       limit,
			Remaining: max(limit-sent, 0),
		})
	}
	return usage, nil
}

func (s *OperatorService) GlobalUsage(ctx context.Context) (*GlobalUsage, error) {
	today := s.pool.Today()
	sent, err := s.sendLogs.CountOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to read global send count: %w", err)
	}
	limit := s.pool.GlobalCap()
	return &GlobalUsage{
		Day:       today,
		Sent:      sent,
		Cap:       limit,
		Remaining: max(limit-sent, 0),
	}, nil
}

// VerifyIdentity logs in to the identity's SMTP server without sending.
func (s *OperatorService) VerifyIdentity(ctx context.Context, id string) error {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.transport.Verify(ctx, *identity); err != nil {
		s.logger.Warn("identity verification failed",
			zap.String("identityId", identity.ID),
			zap.String("address", identity.Address),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *OperatorService) DeactivateIdentity(ctx context.Context, id string) error {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.pool.Deactivate(ctx, *identity)
}

// Suppress adds address to the suppression list. It reports false when the
// address was already suppressed.
func (s *OperatorService) Suppress(ctx context.Context, address string, reason domain.SuppressionReason, source string) (bool, error) {
	normalized, err := domain.NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason = domain.SuppressionManual
	}
	if !reason.IsValid() {
		return false, fmt.Errorf("%w: invalid suppression reason %q", domain.ErrValidation, reason)
	}
	if source == "" {
		source = "operator"
	}

	return s.suppressions.Add(ctx, &domain.SuppressionEntry{
		Address: normalized,
		Reason:  reason,
		Source:  source,
	})
}

func (s *OperatorService) ListSuppressions(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	return s.suppressions.List(ctx, limit)
}
