package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/service"
)

type CampaignService interface {
	Create(ctx context.Context, name string, status domain.CampaignStatus) (*domain.Campaign, error)
	SetStatus(ctx context.Context, id string, status domain.CampaignStatus) (*domain.Campaign, error)
	SendBulk(ctx context.Context, campaignID string, req service.BulkSendRequest) (*service.BulkSendResult, error)
}

type CampaignHandler struct {
	service CampaignService
}

func NewCampaignHandler(service CampaignService) (*CampaignHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	return &CampaignHandler{service: service}, nil
}

type createCampaignRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type campaignStatusRequest struct {
	Status string `json:"status"`
}

type variantRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type bulkSendRequest struct {
	Recipients  []string         `json:"recipients"`
	Variants    []variantRequest `json:"variants"`
	ScheduledAt *time.Time       `json:"scheduledAt"`
	IdentityID  *string          `json:"identityId"`
	Confirm     bool             `json:"confirm"`
}

type campaignResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type overlapResponse struct {
	Error    string            `json:"error"`
	Overlaps []service.Overlap `json:"overlaps"`
}

func (h *CampaignHandler) Create(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var status domain.CampaignStatus
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := domain.ParseCampaignStatus(req.Status)
		if err != nil {
			return toHTTPError(err)
		}
		status = parsed
	}

	campaign, err := h.service.Create(c.UserContext(), req.Name, status)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCampaignResponse(campaign))
}

func (h *CampaignHandler) SetStatus(c *fiber.Ctx) error {
	var req campaignStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := domain.ParseCampaignStatus(req.Status)
	if err != nil {
		return toHTTPError(err)
	}

	campaign, err := h.service.SetStatus(c.UserContext(), strings.TrimSpace(c.Params("id")), status)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toCampaignResponse(campaign))
}

// Send schedules a bulk send. Overlapping recipients without confirm yield a
// 409 listing them and nothing is scheduled.
func (h *CampaignHandler) Send(c *fiber.Ctx) error {
	var req bulkSendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, domain.Variant{Name: v.Name, Subject: v.Subject, Body: v.Body})
	}

	bulk := service.BulkSendRequest{
		Recipients: req.Recipients,
		Variants:   variants,
		IdentityID: req.IdentityID,
		Confirm:    req.Confirm,
	}
	if req.ScheduledAt != nil {
		bulk.ScheduledAt = *req.ScheduledAt
	}

	result, err := h.service.SendBulk(c.UserContext(), strings.TrimSpace(c.Params("id")), bulk)
	if err != nil {
		if errors.Is(err, domain.ErrConfirmationRequired) && result != nil {
			return c.Status(fiber.StatusConflict).JSON(overlapResponse{
				Error:    "recipients are outstanding in another campaign; resend with confirm=true",
				Overlaps: result.Overlaps,
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func toCampaignResponse(c *domain.Campaign) campaignResponse {
	if c == nil {
		return campaignResponse{}
	}
	return campaignResponse{
		ID:        c.ID,
		Name:      c.Name,
		Status:    c.Status.String(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
