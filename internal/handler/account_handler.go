package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

type AccountService interface {
	Create(ctx context.Context, account *domain.Account) error
	Get(ctx context.Context, id string) (*domain.Account, error)
	RequestAudit(ctx context.Context, id string) (*domain.AutomationTask, error)
}

type AccountHandler struct {
	service AccountService
}

func NewAccountHandler(service AccountService) (*AccountHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("account service is required")
	}
	return &AccountHandler{service: service}, nil
}

type createAccountRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

type accountResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Website      string     `json:"website,omitempty"`
	AuditScore   *int       `json:"auditScore,omitempty"`
	AuditSummary string     `json:"auditSummary,omitempty"`
	AuditedAt    *time.Time `json:"auditedAt,omitempty"`
}

func (h *AccountHandler) Create(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	account := &domain.Account{Name: req.Name, Email: req.Email, Website: req.Website}
	if err := h.service.Create(c.UserContext(), account); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toAccountResponse(account))
}

func (h *AccountHandler) Get(c *fiber.Ctx) error {
	account, err := h.service.Get(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toAccountResponse(account))
}

func (h *AccountHandler) RequestAudit(c *fiber.Ctx) error {
	task, err := h.service.RequestAudit(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toTaskResponse(task))
}

func toAccountResponse(a *domain.Account) accountResponse {
	if a == nil {
		return accountResponse{}
	}
	return accountResponse{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Website:      a.Website,
		AuditScore:   a.AuditScore,
		AuditSummary: a.AuditSummary,
		AuditedAt:    a.AuditedAt,
	}
}
