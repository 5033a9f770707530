package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/audit"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

// ScheduledEmailHandler sends the email behind a send_scheduled_email task.
type ScheduledEmailHandler struct {
	emails repository.ScheduledEmailRepository
	sender Sender
	logger *zap.Logger
	now    func() time.Time
}

func NewScheduledEmailHandler(emails repository.ScheduledEmailRepository, sender Sender, logger *zap.Logger) *ScheduledEmailHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduledEmailHandler{
		emails: emails,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

func (h *ScheduledEmailHandler) Handle(ctx context.Context, task domain.AutomationTask, payload domain.SendScheduledEmailPayload) error {
	if strings.TrimSpace(payload.ScheduledEmailID) == "" {
		return fmt.Errorf("%w: scheduledEmailId is required", domain.ErrValidation)
	}

	email, err := h.emails.GetByID(ctx, payload.ScheduledEmailID)
	if err != nil {
		return fmt.Errorf("failed to load scheduled email: %w", err)
	}

	// A retried task can find its email already handled.
	if email.Status != domain.ScheduledEmailPending {
		h.logger.Info("scheduled email is no longer pending, skipping",
			zap.String("scheduledEmailId", email.ID),
			zap.String("status", email.Status.String()),
		)
		return nil
	}

	req := SendRequest{
		To:               email.Recipient,
		Subject:          email.Subject,
		Body:             email.Body,
		Variant:          email.Variant,
		AccountID:        email.AccountID,
		CampaignID:       email.CampaignID,
		ScheduledEmailID: &email.ID,
		TrackingToken:    email.TrackingToken,
		Guard: func(ctx context.Context) error {
			current, err := h.emails.GetByID(ctx, email.ID)
			if err != nil {
				return fmt.Errorf("failed to reload scheduled email: %w", err)
			}
			if current.Status == domain.ScheduledEmailCancelled {
				return domain.ErrCancelled
			}
			if current.Status != domain.ScheduledEmailPending {
				return fmt.Errorf("%w: scheduled email is %s", domain.ErrConflict, current.Status)
			}
			return nil
		},
	}
	if email.IdentityID != nil {
		req.IdentityID = *email.IdentityID
	}

	result, sendErr := h.sender.Send(ctx, req)

	// The task deadline may be spent by now; the outcome is still recorded.
	ctx, cancel := detach(ctx, bookkeepingTimeout)
	defer cancel()

	if sendErr == nil {
		var identityID *string
		if result.Identity.ID != "" {
			id := result.Identity.ID
			identityID = &id
		}
		if err := h.emails.MarkSent(ctx, email.ID, identityID, result.SentAt); err != nil {
			// The email left already; a retry here would send it twice.
			h.logger.Error("failed to mark scheduled email sent",
				zap.String("scheduledEmailId", email.ID),
				zap.Error(err),
			)
		}
		return nil
	}

	switch {
	case errors.Is(sendErr, domain.ErrCancelled):
		h.logger.Info("scheduled email cancelled before send", zap.String("scheduledEmailId", email.ID))
		return nil
	case errors.Is(sendErr, domain.ErrConflict):
		h.logger.Info("scheduled email changed before send", zap.String("scheduledEmailId", email.ID), zap.Error(sendErr))
		return nil
	}

	text := failureText(sendErr)
	lastAttempt := !domain.IsRetryable(sendErr) ||
		(!errors.Is(sendErr, domain.ErrQuotaExceeded) && task.RetryCount >= task.MaxRetries)

	if lastAttempt {
		if err := h.emails.MarkFailed(ctx, email.ID, text); err != nil {
			h.logger.Error("failed to mark scheduled email failed",
				zap.String("scheduledEmailId", email.ID),
				zap.Error(err),
			)
		}
	} else if err := h.emails.RecordAttemptError(ctx, email.ID, text); err != nil {
		h.logger.Warn("failed to record scheduled email attempt error",
			zap.String("scheduledEmailId", email.ID),
			zap.Error(err),
		)
	}

	return sendErr
}

// Abandon fails the email of a task that will not run again. The handler
// normally gets there first; a task reaped past its liveness window does not.
func (h *ScheduledEmailHandler) Abandon(ctx context.Context, task domain.AutomationTask, payload domain.SendScheduledEmailPayload, cause error) error {
	if strings.TrimSpace(payload.ScheduledEmailID) == "" {
		return nil
	}

	err := h.emails.MarkFailed(ctx, payload.ScheduledEmailID, failureText(cause))
	switch {
	case err == nil:
		h.logger.Warn("scheduled email failed with its task",
			zap.String("scheduledEmailId", payload.ScheduledEmailID),
			zap.String("taskId", task.ID),
			zap.Error(cause),
		)
		return nil
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		return nil
	}
	return fmt.Errorf("failed to mark scheduled email failed: %w", err)
}

// Auditor scores a website.
type Auditor interface {
	Audit(ctx context.Context, website string) (*audit.Result, error)
}

// AuditHandler refreshes the stored audit of an account.
type AuditHandler struct {
	accounts repository.AccountRepository
	auditor  Auditor
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuditHandler(accounts repository.AccountRepository, auditor Auditor, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{
		accounts: accounts,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *AuditHandler) Handle(ctx context.Context, _ domain.AutomationTask, payload domain.RefreshAuditPayload) error {
	if h.auditor == nil {
		return fmt.Errorf("%w: no audit service configured", domain.ErrValidation)
	}

	account, err := h.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if strings.TrimSpace(account.Website) == "" {
		return fmt.Errorf("%w: account %s has no website", domain.ErrValidation, account.ID)
	}

	result, err := h.auditor.Audit(ctx, account.Website)
	if err != nil {
		return fmt.Errorf("audit of %s failed: %w", account.Website, err)
	}

	if err := h.accounts.UpdateAudit(ctx, account.ID, result.Score, result.Summary, h.now().UTC()); err != nil {
		return fmt.Errorf("failed to store audit result: %w", err)
	}

	h.logger.Info("account audit refreshed",
		zap.String("accountId", account.ID),
		zap.Int("score", result.Score),
	)
	return nil
}

// RegisterTaskHandlers wires the handler of every task type into registry.
func RegisterTaskHandlers(registry *HandlerRegistry, send *ScheduledEmailHandler, audits *AuditHandler) {
	Handle(registry, send.Handle)
	OnAbandon(registry, send.Abandon)
	Handle(registry, audits.Handle)
}
