package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/compliance"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"go.uber.org/zap"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const unsubscribeConfirmation = "You have been unsubscribed and will not receive further emails from us."

type TrackingService interface {
	RecordOpen(ctx context.Context, token string) (bool, error)
	RecordClick(ctx context.Context, token string) (bool, error)
	Unsubscribe(ctx context.Context, token string) (string, error)
	MarkResponded(ctx context.Context, token string) error
}

type TrackingHandler struct {
	service TrackingService
	logger  *zap.Logger
}

func NewTrackingHandler(service TrackingService, logger *zap.Logger) (*TrackingHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("tracking service is required")
	}
	return &TrackingHandler{service: service, logger: observability.OrNop(logger)}, nil
}

// Open always answers with the pixel; mail clients never see a failure.
func (h *TrackingHandler) Open(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("id"))
	if token != "" && !skipWrite(c) {
		if _, err := h.service.RecordOpen(c.UserContext(), token); err != nil {
			h.logWriteError(c, "open", token, err)
		}
	}

	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, max-age=0")
	return c.Status(fiber.StatusOK).Send(transparentGIF)
}

// Click records the click and redirects to the wrapped destination.
func (h *TrackingHandler) Click(c *fiber.Ctx) error {
	destination := strings.TrimSpace(c.Query("url"))
	if !compliance.IsTrackableURL(destination) {
		return fiber.NewError(fiber.StatusBadRequest, "url must be an absolute http or https url")
	}

	token := strings.TrimSpace(c.Query("id"))
	if token != "" && !skipWrite(c) {
		if _, err := h.service.RecordClick(c.UserContext(), token); err != nil {
			h.logWriteError(c, "click", token, err)
		}
	}

	return c.Redirect(destination, fiber.StatusFound)
}

// Unsubscribe confirms regardless of whether the token matched a message.
func (h *TrackingHandler) Unsubscribe(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("id"))
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id is required")
	}

	if _, err := h.service.Unsubscribe(c.UserContext(), token); err != nil {
		h.logWriteError(c, "unsubscribe", token, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(unsubscribeConfirmation)
}

func (h *TrackingHandler) MarkResponded(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if err := h.service.MarkResponded(c.UserContext(), token); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"trackingToken": token,
		"status":        domain.DeliveryResponded.String(),
	})
}

func (h *TrackingHandler) logWriteError(c *fiber.Ctx, event string, token string, err error) {
	log := observability.WithContextLogger(h.logger, c.UserContext())
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("tracking token not found", zap.String("event", event), zap.String("trackingToken", token))
		return
	}
	log.Warn("failed to record tracking event",
		zap.String("event", event),
		zap.String("trackingToken", token),
		zap.Error(err),
	)
}
