package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	"github.com/kursadbilgin/outreach-engine/internal/service"
	"github.com/kursadbilgin/outreach-engine/internal/transport"
	"go.uber.org/zap"
)

// Services are the collaborators behind the API routes.
type Services struct {
	Sender    service.Sender
	Schedules ScheduleService
	Tracking  TrackingService
	Campaigns CampaignService
	Accounts  AccountService
	Tasks     TaskOperations
	Operator  IdentityOperations
}

type AppOptions struct {
	Limiter ratelimit.RateLimiter
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Checks  []ReadinessCheck
}

// NewApp builds the fiber application with every route registered.
func NewApp(services Services, opts AppOptions) (*fiber.App, error) {
	logger := observability.OrNop(opts.Logger)

	app := fiber.New(fiber.Config{
		AppName:               "outreach-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(RequestID())
	if opts.Metrics != nil {
		app.Use(opts.Metrics.HTTPMiddleware())
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	RegisterHealthRoutes(app, opts.Checks...)

	if err := RegisterRoutes(app, services, opts.Limiter, opts.Metrics, logger); err != nil {
		return nil, err
	}
	return app, nil
}

func RegisterRoutes(app fiber.Router, services Services, limiter ratelimit.RateLimiter, metrics *observability.Metrics, logger *zap.Logger) error {
	send, err := NewSendHandler(services.Sender)
	if err != nil {
		return err
	}
	schedules, err := NewScheduleHandler(services.Schedules)
	if err != nil {
		return err
	}
	tracking, err := NewTrackingHandler(services.Tracking, logger)
	if err != nil {
		return err
	}
	campaigns, err := NewCampaignHandler(services.Campaigns)
	if err != nil {
		return err
	}
	accounts, err := NewAccountHandler(services.Accounts)
	if err != nil {
		return err
	}
	ops, err := NewOpsHandler(services.Tasks, services.Operator)
	if err != nil {
		return err
	}

	track := app.Group("/track", TrackingRateLimit(limiter, metrics, logger))
	track.Get("/open", tracking.Open)
	track.Get("/click", tracking.Click)

	app.Get("/unsubscribe", tracking.Unsubscribe)
	app.Post("/unsubscribe", tracking.Unsubscribe)

	api := app.Group("", RateLimit(limiter, "api", metrics, logger))
	api.Post("/send", send.Send)

	api.Post("/schedule", schedules.Create)
	api.Get("/schedule", schedules.List)
	api.Get("/schedule/:id", schedules.Get)
	api.Post("/schedule/:id/cancel", schedules.Cancel)
	api.Post("/schedule/:id/retry", schedules.Retry)

	api.Post("/campaigns", campaigns.Create)
	api.Post("/campaigns/:id/status", campaigns.SetStatus)
	api.Post("/campaigns/:id/send", campaigns.Send)

	api.Post("/accounts", accounts.Create)
	api.Get("/accounts/:id", accounts.Get)
	api.Post("/accounts/:id/audit", accounts.RequestAudit)

	api.Get("/ops/tasks/stats", ops.TaskStats)
	api.Get("/ops/tasks", ops.ListTasks)
	api.Post("/ops/tasks/:id/requeue", ops.RequeueTask)
	api.Get("/ops/identities", ops.Identities)
	api.Post("/ops/identities/:id/verify", ops.VerifyIdentity)
	api.Post("/ops/suppressions", ops.Suppress)
	api.Post("/ops/deliveries/:token/responded", tracking.MarkResponded)

	return nil
}
