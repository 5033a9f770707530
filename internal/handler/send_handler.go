package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/service"
)

type SendHandler struct {
	sender service.Sender
}

func NewSendHandler(sender service.Sender) (*SendHandler, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	return &SendHandler{sender: sender}, nil
}

type sendRequest struct {
	To         string  `json:"to"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
	IdentityID string  `json:"identityId"`
	Variant    string  `json:"variant"`
	AccountID  *string `json:"accountId"`
	CampaignID *string `json:"campaignId"`
}

type sendResponse struct {
	Success       bool   `json:"success"`
	TrackingToken string `json:"trackingToken,omitempty"`
	IdentityID    string `json:"identityId,omitempty"`
	Error         string `json:"error,omitempty"`
	Bounced       bool   `json:"bounced,omitempty"`
	BounceType    string `json:"bounceType,omitempty"`
}

// Send delivers one email immediately.
func (h *SendHandler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.sender.Send(c.UserContext(), service.SendRequest{
		To:         req.To,
		Subject:    req.Subject,
		Body:       req.Body,
		IdentityID: req.IdentityID,
		Variant:    req.Variant,
		AccountID:  req.AccountID,
		CampaignID: req.CampaignID,
	})
	if err != nil {
		if category, ok := provider.CategoryOf(err); ok {
			return c.Status(fiber.StatusBadGateway).JSON(sendResponse{
				Error:      err.Error(),
				Bounced:    category == domain.BounceHard,
				BounceType: category.String(),
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(sendResponse{
		Success:       true,
		TrackingToken: result.TrackingToken,
		IdentityID:    result.Identity.ID,
	})
}
