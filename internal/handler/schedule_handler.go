package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/service"
)

type ScheduleService interface {
	Schedule(ctx context.Context, req service.ScheduleRequest) (*domain.ScheduledEmail, error)
	Get(ctx context.Context, id string) (*domain.ScheduledEmail, error)
	List(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error)
	Cancel(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) (*domain.ScheduledEmail, error)
}

type ScheduleHandler struct {
	service ScheduleService
}

func NewScheduleHandler(service ScheduleService) (*ScheduleHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("schedule service is required")
	}
	return &ScheduleHandler{service: service}, nil
}

type scheduleRequest struct {
	To           string     `json:"to"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
	Priority     string     `json:"priority"`
	AccountID    *string    `json:"accountId"`
	CampaignID   *string    `json:"campaignId"`
	IdentityID   *string    `json:"identityId"`
	Variant      string     `json:"variant"`
	SequenceID   *string    `json:"sequenceId"`
	SequenceStep int        `json:"sequenceStep"`
}

type scheduledEmailResponse struct {
	ID            string     `json:"id"`
	AccountID     *string    `json:"accountId,omitempty"`
	CampaignID    *string    `json:"campaignId,omitempty"`
	Recipient     string     `json:"recipient"`
	Subject       string     `json:"subject"`
	Variant       string     `json:"variant,omitempty"`
	TrackingToken string     `json:"trackingToken"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	Error         string     `json:"error,omitempty"`
	IdentityID    *string    `json:"identityId,omitempty"`
	SequenceID    *string    `json:"sequenceId,omitempty"`
	SequenceStep  int        `json:"sequenceStep"`
	TaskID        *string    `json:"taskId,omitempty"`
}

func (h *ScheduleHandler) Create(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return toHTTPError(err)
	}

	scheduleReq := service.ScheduleRequest{
		To:           req.To,
		Subject:      req.Subject,
		Body:         req.Body,
		Priority:     priority,
		AccountID:    req.AccountID,
		CampaignID:   req.CampaignID,
		IdentityID:   req.IdentityID,
		Variant:      req.Variant,
		SequenceID:   req.SequenceID,
		SequenceStep: req.SequenceStep,
	}
	if req.ScheduledAt != nil {
		scheduleReq.ScheduledAt = *req.ScheduledAt
	}

	email, err := h.service.Schedule(c.UserContext(), scheduleReq)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toScheduledEmailResponse(email))
}

func (h *ScheduleHandler) Get(c *fiber.Ctx) error {
	email, err := h.service.Get(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toScheduledEmailResponse(email))
}

// List returns scheduled emails in one status, pending by default.
func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	status, err := domain.ParseScheduledEmailStatus(c.Query("status", domain.ScheduledEmailPending.String()))
	if err != nil {
		return toHTTPError(err)
	}
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit))
	}

	emails, err := h.service.List(c.UserContext(), status, limit)
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]scheduledEmailResponse, 0, len(emails))
	for i := range emails {
		out = append(out, toScheduledEmailResponse(&emails[i]))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *ScheduleHandler) Cancel(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":     id,
		"status": domain.ScheduledEmailCancelled.String(),
	})
}

func (h *ScheduleHandler) Retry(c *fiber.Ctx) error {
	email, err := h.service.Retry(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toScheduledEmailResponse(email))
}

func toScheduledEmailResponse(e *domain.ScheduledEmail) scheduledEmailResponse {
	if e == nil {
		return scheduledEmailResponse{}
	}

	return scheduledEmailResponse{
		ID:            e.ID,
		AccountID:     e.AccountID,
		CampaignID:    e.CampaignID,
		Recipient:     e.Recipient,
		Subject:       e.Subject,
		Variant:       e.Variant,
		TrackingToken: e.TrackingToken,
		ScheduledAt:   e.ScheduledAt,
		Status:        e.Status.String(),
		SentAt:        e.SentAt,
		Error:         e.Error,
		IdentityID:    e.IdentityID,
		SequenceID:    e.SequenceID,
		SequenceStep:  e.SequenceStep,
		TaskID:        e.TaskID,
	}
}
