package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/compliance"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/events"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

// SendRequest is one email to push through the delivery pipeline.
type SendRequest struct {
	To      string
	Subject string
	Body    string
	// IdentityID pins the sender. Empty lets the pool choose.
	IdentityID       string
	Variant          string
	AccountID        *string
	CampaignID       *string
	ScheduledEmailID *string
	// TrackingToken is generated when empty.
	TrackingToken string
	// Guard runs right before the transport is called. A non-nil error aborts
	// the send without touching any counter.
	Guard func(ctx context.Context) error
}

type SendResult struct {
	TrackingToken string
	Recipient     string
	Identity      domain.SendingIdentity
	SentAt        time.Time
}

// Sender is the delivery pipeline as seen by its callers.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// DeliveryService runs suppression, quota, footer and transport for every send.
type DeliveryService struct {
	suppressions       repository.SuppressionRepository
	deliveries         repository.DeliveryRepository
	pool               *IdentityPool
	transport          provider.Transport
	footer             *compliance.Builder
	publisher          events.Publisher
	unsubscribeMessage string
	logger             *zap.Logger
	metrics            *observability.Metrics
	now                func() time.Time
}

func NewDeliveryService(
	suppressions repository.SuppressionRepository,
	deliveries repository.DeliveryRepository,
	pool *IdentityPool,
	transport provider.Transport,
	footer *compliance.Builder,
	publisher events.Publisher,
	unsubscribeMessage string,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if suppressions == nil || deliveries == nil || pool == nil || transport == nil || footer == nil {
		return nil, fmt.Errorf("delivery service requires suppressions, deliveries, identity pool, transport and footer")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		suppressions:       suppressions,
		deliveries:         deliveries,
		pool:               pool,
		transport:          transport,
		footer:             footer,
		publisher:          publisher,
		unsubscribeMessage: unsubscribeMessage,
		logger:             logger,
		now:                time.Now,
	}, nil
}

func (s *DeliveryService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Send delivers one email. Suppressed recipients and exhausted quotas are
// rejected before the transport is reached; transport failures are classified
// and returned as *provider.ProviderError.
func (s *DeliveryService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	recipient, err := domain.NormalizeAddress(req.To)
	if err != nil {
		s.metrics.IncEmailFailed("invalid")
		return nil, err
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("%w: body is required", domain.ErrValidation)
	}

	suppressed, err := s.suppressions.IsSuppressed(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to check suppression list: %w", err)
	}
	if suppressed {
		s.metrics.IncEmailFailed("suppressed")
		return nil, fmt.Errorf("%w: %s", domain.ErrSuppressed, recipient)
	}

	identity, err := s.pool.Select(ctx, req.IdentityID)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}
	if err := s.pool.CheckQuota(ctx, *identity); err != nil {
		s.countRejection(err)
		return nil, err
	}

	token := strings.TrimSpace(req.TrackingToken)
	if token == "" {
		token = compliance.NewToken()
	}
	body := s.footer.Apply(req.Body, recipient, s.unsubscribeMessage, identity.Address, token)

	if req.Guard != nil {
		if err := req.Guard(ctx); err != nil {
			return nil, err
		}
	}

	record := &domain.DeliveryRecord{
		TrackingToken:    token,
		AccountID:        req.AccountID,
		CampaignID:       req.CampaignID,
		ScheduledEmailID: req.ScheduledEmailID,
		Recipient:        recipient,
		Subject:          req.Subject,
		Body:             body,
		Variant:          req.Variant,
	}
	if identity.ID != "" {
		identityID := identity.ID
		record.IdentityID = &identityID
	}

	msg := provider.Message{
		To:             recipient,
		Subject:        req.Subject,
		Body:           body,
		UnsubscribeURL: s.footer.UnsubscribeURL(token),
		TrackingToken:  token,
	}

	providerLabel := string(identity.Provider)
	sendStart := s.now()
	sendErr := s.transport.Send(ctx, *identity, msg)
	s.metrics.ObserveEmailSendDuration(providerLabel, s.now().Sub(sendStart))

	if sendErr != nil {
		// The message or identity was rejected before anything went on the wire.
		if errors.Is(sendErr, domain.ErrValidation) {
			s.metrics.IncEmailFailed("invalid")
			s.logger.Warn("email rejected by transport",
				zap.String("trackingToken", token),
				zap.String("identity", identity.Address),
				zap.Error(sendErr),
			)
			return nil, sendErr
		}
		return nil, s.handleFailure(ctx, *identity, record, sendErr)
	}

	// The email is out; its bookkeeping must not die with the caller's deadline.
	ctx, cancel := detach(ctx, bookkeepingTimeout)
	defer cancel()

	sentAt := s.now().UTC()
	if err := s.pool.RecordSend(ctx, *identity); err != nil {
		s.logger.Error("failed to record send counters",
			zap.String("trackingToken", token),
			zap.Error(err),
		)
	}

	record.Status = domain.DeliverySent
	record.SentAt = &sentAt
	if err := s.deliveries.Upsert(ctx, record); err != nil {
		s.logger.Error("failed to persist delivery record",
			zap.String("trackingToken", token),
			zap.Error(err),
		)
	}

	s.metrics.IncEmailSent(providerLabel)
	s.publish(ctx, events.DeliverySent, map[string]string{
		"trackingToken": token,
		"recipient":     recipient,
		"identity":      identity.Address,
	})

	s.logger.Info("email sent",
		zap.String("trackingToken", token),
		zap.String("identity", identity.Address),
	)

	return &SendResult{
		TrackingToken: token,
		Recipient:     recipient,
		Identity:      *identity,
		SentAt:        sentAt,
	}, nil
}

func (s *DeliveryService) handleFailure(
	ctx context.Context,
	identity domain.SendingIdentity,
	record *domain.DeliveryRecord,
	sendErr error,
) error {
	var providerErr *provider.ProviderError
	if !errors.As(sendErr, &providerErr) {
		providerErr = provider.NewError("", sendErr)
	}

	ctx, cancel := detach(ctx, bookkeepingTimeout)
	defer cancel()

	attrs := map[string]string{
		"trackingToken": record.TrackingToken,
		"recipient":     record.Recipient,
		"identity":      identity.Address,
		"category":      string(providerErr.Category),
		"error":         providerErr.Detail(),
	}

	s.metrics.IncEmailFailed(string(providerErr.Category))
	s.logger.Warn("email send failed",
		zap.String("trackingToken", record.TrackingToken),
		zap.String("identity", identity.Address),
		zap.String("category", string(providerErr.Category)),
		zap.Error(sendErr),
	)

	switch providerErr.Category {
	case domain.BounceHard:
		if _, err := s.suppressions.Add(ctx, &domain.SuppressionEntry{
			Address: record.Recipient,
			Reason:  domain.SuppressionHardBounce,
			Source:  "bounce:" + record.TrackingToken,
		}); err != nil {
			s.logger.Error("failed to suppress hard bounced recipient", zap.Error(err))
		}

		bouncedAt := s.now().UTC()
		record.Status = domain.DeliveryBounced
		record.BounceType = providerErr.Category
		record.Error = providerErr.Detail()
		record.BouncedAt = &bouncedAt
		if err := s.deliveries.Upsert(ctx, record); err != nil {
			s.logger.Error("failed to persist bounced delivery record", zap.Error(err))
		}
		s.publish(ctx, events.DeliveryBounced, attrs)

	case domain.BounceAuth:
		if err := s.pool.Deactivate(ctx, identity); err != nil {
			s.logger.Error("failed to deactivate identity after auth failure", zap.Error(err))
		}
		s.publish(ctx, events.IdentityAuthFailure, attrs)
		s.publish(ctx, events.DeliveryFailed, attrs)

	default:
		s.publish(ctx, events.DeliveryFailed, attrs)
	}

	return providerErr
}

func (s *DeliveryService) countRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		s.metrics.IncEmailFailed("quota")
	case errors.Is(err, domain.ErrNoIdentity):
		s.metrics.IncEmailFailed("no_identity")
	}
}

func (s *DeliveryService) publish(ctx context.Context, eventType string, attrs map[string]string) {
	publishCtx, cancel := detach(ctx, eventPublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, events.New(eventType, s.now(), attrs)); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event", eventType),
			zap.Error(err),
		)
	}
}

const (
	eventPublishTimeout = 2 * time.Second
	bookkeepingTimeout  = 10 * time.Second
)

// detach keeps the values of ctx but not its cancellation, bounded by timeout.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// failureText renders a send error the way it is stored on a scheduled email.
func failureText(err error) string {
	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		return domain.FailureText(providerErr.Category, providerErr.Detail())
	}

	switch {
	case errors.Is(err, domain.ErrSuppressed):
		return "suppressed: " + err.Error()
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota: " + err.Error()
	case errors.Is(err, domain.ErrNoIdentity):
		return "no_identity: " + err.Error()
	case errors.Is(err, domain.ErrValidation):
		return "invalid: " + err.Error()
	}
	return domain.FailureText(domain.BounceOther, err.Error())
}
