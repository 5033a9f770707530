package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/compliance"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

// ScheduleRequest describes an email to send later.
type ScheduleRequest struct {
	To            string
	Subject       string
	Body          string
	ScheduledAt   time.Time
	Priority      domain.Priority
	AccountID     *string
	CampaignID    *string
	IdentityID    *string
	Variant       string
	SequenceID    *string
	SequenceStep  int
	TrackingToken string
}

// ScheduleService queues emails for the scheduler and manages their lifecycle
// until they are sent.
type ScheduleService struct {
	emails             repository.ScheduledEmailRepository
	identities         repository.IdentityRepository
	tasks              TaskEnqueuer
	footer             *compliance.Builder
	unsubscribeMessage string
	grace              time.Duration
	logger             *zap.Logger
	now                func() time.Time
}

func NewScheduleService(
	emails repository.ScheduledEmailRepository,
	identities repository.IdentityRepository,
	tasks TaskEnqueuer,
	footer *compliance.Builder,
	unsubscribeMessage string,
	grace time.Duration,
	logger *zap.Logger,
) (*ScheduleService, error) {
	if emails == nil || identities == nil || tasks == nil || footer == nil {
		return nil, fmt.Errorf("schedule service requires emails, identities, tasks and footer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ScheduleService{
		emails:             emails,
		identities:         identities,
		tasks:              tasks,
		footer:             footer,
		unsubscribeMessage: unsubscribeMessage,
		grace:              grace,
		logger:             logger,
		now:                time.Now,
	}, nil
}

// Schedule stores the email with its compliance footer already applied and
// creates the task that will send it.
func (s *ScheduleService) Schedule(ctx context.Context, req ScheduleRequest) (*domain.ScheduledEmail, error) {
	recipient, err := domain.NormalizeAddress(req.To)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	if scheduledAt.Before(now.Add(-s.grace)) {
		return nil, fmt.Errorf("%w: scheduledAt %s is in the past", domain.ErrValidation, scheduledAt.UTC().Format(time.RFC3339))
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: invalid priority %q", domain.ErrValidation, priority)
	}

	// The pool picks the sender of an unpinned email at send time, so the
	// footer only names a pinned one.
	var sender string
	if req.IdentityID != nil && strings.TrimSpace(*req.IdentityID) != "" {
		identity, err := s.identities.GetByID(ctx, strings.TrimSpace(*req.IdentityID))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: identity %s does not exist", domain.ErrValidation, *req.IdentityID)
			}
			return nil, fmt.Errorf("failed to load identity: %w", err)
		}
		sender = identity.Address
	}

	token := strings.TrimSpace(req.TrackingToken)
	if token == "" {
		token = compliance.NewToken()
	}

	email := &domain.ScheduledEmail{
		AccountID:     req.AccountID,
		CampaignID:    req.CampaignID,
		Recipient:     recipient,
		Subject:       strings.TrimSpace(req.Subject),
		Body:          req.Body,
		Variant:       req.Variant,
		TrackingToken: token,
		ScheduledAt:   scheduledAt.UTC(),
		Status:        domain.ScheduledEmailPending,
		IdentityID:    req.IdentityID,
		SequenceID:    req.SequenceID,
		SequenceStep:  req.SequenceStep,
	}
	if err := email.Validate(); err != nil {
		return nil, err
	}
	email.Body = s.footer.Apply(req.Body, recipient, s.unsubscribeMessage, sender, token)

	if err := s.emails.Create(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to create scheduled email: %w", err)
	}

	if err := s.enqueueSend(ctx, email, priority); err != nil {
		// No task will ever pick the row up.
		if cancelErr := s.emails.Cancel(context.WithoutCancel(ctx), email.ID); cancelErr != nil {
			s.logger.Error("failed to cancel unqueued scheduled email",
				zap.String("scheduledEmailId", email.ID),
				zap.Error(cancelErr),
			)
		}
		return nil, err
	}

	s.logger.Info("email scheduled",
		zap.String("scheduledEmailId", email.ID),
		zap.Time("scheduledAt", email.ScheduledAt),
	)
	return email, nil
}

func (s *ScheduleService) Get(ctx context.Context, id string) (*domain.ScheduledEmail, error) {
	return s.emails.GetByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid scheduled email status %q", domain.ErrValidation, status)
	}
	return s.emails.ListByStatus(ctx, status, limit)
}

// Cancel stops a pending email. Its task still runs and finds nothing to send.
func (s *ScheduleService) Cancel(ctx context.Context, id string) error {
	if err := s.emails.Cancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("scheduled email cancelled", zap.String("scheduledEmailId", id))
	return nil
}

// Retry puts a failed email back in the queue with a new task due now.
func (s *ScheduleService) Retry(ctx context.Context, id string) (*domain.ScheduledEmail, error) {
	now := s.now().UTC()
	if err := s.emails.Retry(ctx, id, now); err != nil {
		return nil, err
	}

	email, err := s.emails.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.enqueueSend(ctx, email, domain.PriorityNormal); err != nil {
		if markErr := s.emails.MarkFailed(context.WithoutCancel(ctx), id, "retry: "+err.Error()); markErr != nil {
			s.logger.Error("failed to restore scheduled email after retry error",
				zap.String("scheduledEmailId", id),
				zap.Error(markErr),
			)
		}
		return nil, err
	}

	s.logger.Info("scheduled email retried", zap.String("scheduledEmailId", id))
	return email, nil
}

func (s *ScheduleService) enqueueSend(ctx context.Context, email *domain.ScheduledEmail, priority domain.Priority) error {
	task, err := s.tasks.Enqueue(ctx, domain.SendScheduledEmailPayload{ScheduledEmailID: email.ID}, EnqueueOptions{
		Priority:    priority,
		ScheduledAt: email.ScheduledAt,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue send task: %w", err)
	}

	if err := s.emails.SetTaskID(ctx, email.ID, task.ID); err != nil {
		return fmt.Errorf("failed to link send task: %w", err)
	}
	taskID := task.ID
	email.TaskID = &taskID
	return nil
}
