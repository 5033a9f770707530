package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/service"
	"github.com/kursadbilgin/outreach-engine/internal/warmup"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type TaskOperations interface {
	Stats(ctx context.Context) (map[domain.TaskStatus]int64, error)
	List(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error)
	Requeue(ctx context.Context, id string) error
}

type IdentityOperations interface {
	IdentityUsage(ctx context.Context) ([]service.IdentityUsage, error)
	GlobalUsage(ctx context.Context) (*service.GlobalUsage, error)
	VerifyIdentity(ctx context.Context, id string) error
	Suppress(ctx context.Context, address string, reason domain.SuppressionReason, source string) (bool, error)
}

// OpsHandler serves the operator endpoints under /ops.
type OpsHandler struct {
	tasks    TaskOperations
	operator IdentityOperations
}

func NewOpsHandler(tasks TaskOperations, operator IdentityOperations) (*OpsHandler, error) {
	if tasks == nil || operator == nil {
		return nil, fmt.Errorf("task and identity operations are required")
	}
	return &OpsHandler{tasks: tasks, operator: operator}, nil
}

type taskResponse struct {
	ID                  string     `json:"id"`
	Type                string     `json:"type"`
	Priority            string     `json:"priority"`
	Status              string     `json:"status"`
	ScheduledAt         time.Time  `json:"scheduledAt"`
	RetryCount          int        `json:"retryCount"`
	MaxRetries          int        `json:"maxRetries"`
	ErrorLog            []string   `json:"errorLog,omitempty"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

type identityUsageResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Address       string `json:"address"`
	Provider      string `json:"provider"`
	Active        bool   `json:"active"`
	WarmupEnabled bool   `json:"warmupEnabled"`
	SentToday     int    `json:"sentToday"`
	Cap           *int   `json:"cap"`
	Remaining     *int   `json:"remaining"`
}

type globalUsageResponse struct {
	Day       string `json:"day"`
	Sent      int    `json:"sent"`
	Cap       *int   `json:"cap"`
	Remaining *int   `json:"remaining"`
}

type suppressRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
	Source  string `json:"source"`
}

func (h *OpsHandler) TaskStats(c *fiber.Ctx) error {
	stats, err := h.tasks.Stats(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	out := make(map[string]int64, len(stats))
	for status, count := range stats {
		out[status.String()] = count
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *OpsHandler) ListTasks(c *fiber.Ctx) error {
	status, err := domain.ParseTaskStatusFromString(c.Query("status", domain.TaskStatusDeadLetter.String()))
	if err != nil {
		return toHTTPError(err)
	}
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit))
	}

	tasks, err := h.tasks.List(c.UserContext(), status, limit)
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toTaskResponse(&tasks[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": out})
}

func (h *OpsHandler) RequeueTask(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.tasks.Requeue(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"taskId": id,
		"status": domain.TaskStatusPending.String(),
	})
}

// Identities lists every identity with today's usage against its cap. A null
// cap means unlimited.
func (h *OpsHandler) Identities(c *fiber.Ctx) error {
	usage, err := h.operator.IdentityUsage(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	global, err := h.operator.GlobalUsage(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	identities := make([]identityUsageResponse, 0, len(usage))
	for _, u := range usage {
		identities = append(identities, identityUsageResponse{
			ID:            u.Identity.ID,
			Name:          u.Identity.Name,
			Address:       u.Identity.Address,
			Provider:      string(u.Identity.Provider),
			Active:        u.Identity.Active,
			WarmupEnabled: u.Identity.WarmupEnabled,
			SentToday:     u.SentToday,
			Cap:           finiteOrNil(u.Cap),
			Remaining:     finiteOrNil(u.Remaining),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"identities": identities,
		"global": globalUsageResponse{
			Day:       global.Day,
			Sent:      global.Sent,
			Cap:       finiteOrNil(global.Cap),
			Remaining: finiteOrNil(global.Remaining),
		},
	})
}

func (h *OpsHandler) VerifyIdentity(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.operator.VerifyIdentity(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"identityId": id,
		"verified":   true,
	})
}

func (h *OpsHandler) Suppress(c *fiber.Ctx) error {
	var req suppressRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reason, err := domain.ParseSuppressionReason(req.Reason)
	if err != nil {
		return toHTTPError(err)
	}

	added, err := h.operator.Suppress(c.UserContext(), req.Address, reason, strings.TrimSpace(req.Source))
	if err != nil {
		return toHTTPError(err)
	}

	address, _ := domain.NormalizeAddress(req.Address)
	status := fiber.StatusCreated
	if !added {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"address": address,
		"reason":  string(reason),
		"added":   added,
	})
}

func toTaskResponse(t *domain.AutomationTask) taskResponse {
	if t == nil {
		return taskResponse{}
	}
	return taskResponse{
		ID:                  t.ID,
		Type:                t.Type.String(),
		Priority:            t.Priority.String(),
		Status:              t.Status.String(),
		ScheduledAt:         t.ScheduledAt,
		RetryCount:          t.RetryCount,
		MaxRetries:          t.MaxRetries,
		ErrorLog:            t.ErrorLog,
		ProcessingStartedAt: t.ProcessingStartedAt,
		CompletedAt:         t.CompletedAt,
	}
}

func finiteOrNil(v int) *int {
	if v == warmup.Unlimited {
		return nil
	}
	return &v
}
