package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

// TrackingService records engagement reported by the tracking endpoints.
type TrackingService struct {
	deliveries   repository.DeliveryRepository
	suppressions repository.SuppressionRepository
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

func NewTrackingService(
	deliveries repository.DeliveryRepository,
	suppressions repository.SuppressionRepository,
	logger *zap.Logger,
) *TrackingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingService{
		deliveries:   deliveries,
		suppressions: suppressions,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *TrackingService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RecordOpen stamps the first open of a message. It reports whether this hit was
// the one that recorded it.
func (s *TrackingService) RecordOpen(ctx context.Context, token string) (bool, error) {
	return s.record(ctx, "open", token, s.deliveries.MarkOpened)
}

// RecordClick stamps the first click, and the open when none was seen.
func (s *TrackingService) RecordClick(ctx context.Context, token string) (bool, error) {
	return s.record(ctx, "click", token, s.deliveries.MarkClicked)
}

func (s *TrackingService) record(
	ctx context.Context,
	event string,
	token string,
	mark func(ctx context.Context, token string, at time.Time) (bool, error),
) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.IncTrackingEvent(event, "skipped")
		return false, fmt.Errorf("%w: tracking id is required", domain.ErrValidation)
	}

	first, err := mark(ctx, token, s.now().UTC())
	if err != nil {
		s.metrics.IncTrackingEvent(event, "error")
		return false, err
	}

	if first {
		s.metrics.IncTrackingEvent(event, "recorded")
	} else {
		s.metrics.IncTrackingEvent(event, "duplicate")
	}
	return first, nil
}

// Unsubscribe suppresses the recipient of the message token was issued for.
func (s *TrackingService) Unsubscribe(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: tracking id is required", domain.ErrValidation)
	}

	record, err := s.deliveries.GetByToken(ctx, token)
	if err != nil {
		s.metrics.IncTrackingEvent("unsubscribe", "error")
		return "", err
	}

	added, err := s.suppressions.Add(ctx, &domain.SuppressionEntry{
		Address: record.Recipient,
		Reason:  domain.SuppressionUnsubscribe,
		Source:  "unsubscribe:" + token,
	})
	if err != nil {
		s.metrics.IncTrackingEvent("unsubscribe", "error")
		return "", fmt.Errorf("failed to suppress recipient: %w", err)
	}

	if added {
		s.metrics.IncTrackingEvent("unsubscribe", "recorded")
		s.logger.Info("recipient unsubscribed", zap.String("trackingToken", token))
	} else {
		s.metrics.IncTrackingEvent("unsubscribe", "duplicate")
	}
	return record.Recipient, nil
}

// MarkResponded records a reply. Bounced messages cannot be marked.
func (s *TrackingService) MarkResponded(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: tracking id is required", domain.ErrValidation)
	}
	return s.deliveries.MarkResponded(ctx, token, s.now().UTC())
}

func (s *TrackingService) Get(ctx context.Context, token string) (*domain.DeliveryRecord, error) {
	return s.deliveries.GetByToken(ctx, strings.TrimSpace(token))
}
