package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/audit"
	"github.com/kursadbilgin/outreach-engine/internal/compliance"
	"github.com/kursadbilgin/outreach-engine/internal/config"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/events"
	"github.com/kursadbilgin/outreach-engine/internal/handler"
	"github.com/kursadbilgin/outreach-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/outreach-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/outreach-engine/internal/infra/redis"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"github.com/kursadbilgin/outreach-engine/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Runtime owns every connection and service a process needs. Close releases
// them in reverse order of creation.
type Runtime struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	DB        *gorm.DB
	Redis     *goredis.Client
	Publisher events.Publisher
	Limiter   ratelimit.RateLimiter

	Tasks        *service.TaskService
	Pool         *service.IdentityPool
	Delivery     *service.DeliveryService
	Schedules    *service.ScheduleService
	Campaigns    *service.CampaignService
	Tracking     *service.TrackingService
	Accounts     *service.AccountService
	Operator     *service.OperatorService
	Scheduler    *service.Scheduler
	CounterReset *service.CounterReset

	closers []func() error
}

// New connects to the configured backends and assembles the services. It does
// not run migrations.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	rt := &Runtime{
		Config:  cfg,
		Logger:  observability.OrNop(logger),
		Metrics: observability.NewMetrics(),
	}
	if err := rt.build(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config

	location, err := cfg.Location()
	if err != nil {
		return err
	}
	warmupStart, err := cfg.WarmupStart()
	if err != nil {
		return err
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		return err
	}
	rt.DB = db
	rt.closers = append(rt.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		rt.Redis = client
		rt.closers = append(rt.closers, client.Close)
	}

	if err := rt.buildLimiter(); err != nil {
		return err
	}

	rt.Publisher = events.NopPublisher{}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		rabbit, err := events.NewRabbitMQ(ctx, cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		publisher := events.NewRabbitMQPublisher(rabbit)
		rt.Publisher = publisher
		rt.closers = append(rt.closers, publisher.Close)
	}

	accounts := repository.NewGormAccountRepo(db)
	campaigns := repository.NewGormCampaignRepo(db)
	deliveries := repository.NewGormDeliveryRepo(db)
	identities := repository.NewGormIdentityRepo(db)
	emails := repository.NewGormScheduledEmailRepo(db)
	sendLogs := repository.NewGormSendLogRepo(db)
	suppressions := repository.NewGormSuppressionRepo(db)
	tasks := repository.NewGormTaskRepo(db)

	footer, err := compliance.NewBuilder(cfg.PublicBaseURL)
	if err != nil {
		return err
	}
	transport := provider.NewSMTPTransport(cfg.SMTPConnectTimeout, cfg.SMTPSendTimeout)

	// Identities can warm up on their own even when the global ramp is off.
	poolCfg := service.IdentityPoolConfig{
		GlobalDailyLimit: cfg.GlobalDailyLimit,
		Curve:            cfg.WarmupCurve(),
		Location:         location,
	}
	if cfg.WarmupEnabled {
		poolCfg.GlobalWarmupStart = warmupStart
	}
	if cfg.HasFallbackSMTP() {
		poolCfg.Fallback = fallbackIdentity(cfg)
	}

	rt.Pool, err = service.NewIdentityPool(identities, sendLogs, poolCfg, rt.Logger)
	if err != nil {
		return err
	}

	rt.Tasks, err = service.NewTaskService(tasks, cfg.TaskMaxRetries, cfg.EnqueueGraceWindow, rt.Logger)
	if err != nil {
		return err
	}

	rt.Delivery, err = service.NewDeliveryService(
		suppressions,
		deliveries,
		rt.Pool,
		transport,
		footer,
		rt.Publisher,
		cfg.UnsubscribeMessage,
		rt.Logger,
	)
	if err != nil {
		return err
	}
	rt.Delivery.SetMetrics(rt.Metrics)

	rt.Schedules, err = service.NewScheduleService(
		emails,
		identities,
		rt.Tasks,
		footer,
		cfg.UnsubscribeMessage,
		cfg.EnqueueGraceWindow,
		rt.Logger,
	)
	if err != nil {
		return err
	}

	rt.Campaigns = service.NewCampaignService(campaigns, deliveries, rt.Schedules, rt.Logger)
	rt.Tracking = service.NewTrackingService(deliveries, suppressions, rt.Logger)
	rt.Tracking.SetMetrics(rt.Metrics)
	rt.Accounts = service.NewAccountService(accounts, rt.Tasks)
	rt.Operator = service.NewOperatorService(identities, sendLogs, suppressions, rt.Pool, transport, rt.Logger)

	var auditor service.Auditor
	if strings.TrimSpace(cfg.AuditServiceURL) != "" {
		client, err := audit.NewClient(cfg.AuditServiceURL)
		if err != nil {
			return err
		}
		auditor = client
	}

	registry := service.NewHandlerRegistry()
	service.RegisterTaskHandlers(
		registry,
		service.NewScheduledEmailHandler(emails, rt.Delivery, rt.Logger),
		service.NewAuditHandler(accounts, auditor, rt.Logger),
	)

	rt.Scheduler, err = service.NewScheduler(tasks, registry, rt.Publisher, service.SchedulerConfig{
		PollInterval:   cfg.SchedulerPollInterval,
		Workers:        cfg.SchedulerWorkers,
		TaskTimeout:    cfg.TaskTimeout,
		LivenessWindow: cfg.TaskLivenessWindow,
		RetryBaseDelay: cfg.TaskRetryBaseDelay,
		RetryMaxDelay:  cfg.TaskRetryMaxDelay,
		Location:       location,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.Scheduler.SetMetrics(rt.Metrics)

	rt.CounterReset = service.NewCounterReset(identities, location, rt.Logger)
	return nil
}

func (rt *Runtime) buildLimiter() error {
	cfg := rt.Config
	switch strings.ToLower(cfg.RateLimitBackend) {
	case config.RateLimitBackendRedis:
		if rt.Redis == nil {
			return fmt.Errorf("redis rate limiter requires REDIS_URL")
		}
		limiter, err := infraredis.NewRedisRateLimiter(rt.Redis, cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
		if err != nil {
			return err
		}
		rt.Limiter = limiter
	default:
		limiter, err := ratelimit.NewFixedWindow(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
		if err != nil {
			return err
		}
		rt.Limiter = limiter
	}
	return nil
}

// Migrate brings the schema up to date.
func (rt *Runtime) Migrate() error {
	return migrations.Migrate(rt.DB)
}

// ImportIdentities loads IDENTITIES_FILE into the pool when it is configured.
func (rt *Runtime) ImportIdentities(ctx context.Context) (int, error) {
	path := strings.TrimSpace(rt.Config.IdentitiesFile)
	if path == "" {
		return 0, nil
	}
	identities, err := config.LoadIdentities(path)
	if err != nil {
		return 0, err
	}
	return rt.Operator.ImportIdentities(ctx, identities)
}

func (rt *Runtime) Services() handler.Services {
	return handler.Services{
		Sender:    rt.Delivery,
		Schedules: rt.Schedules,
		Tracking:  rt.Tracking,
		Campaigns: rt.Campaigns,
		Accounts:  rt.Accounts,
		Tasks:     rt.Tasks,
		Operator:  rt.Operator,
	}
}

func (rt *Runtime) ReadinessChecks() []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{{
		Name: "postgres",
		Ping: func(ctx context.Context) error {
			sqlDB, err := rt.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if rt.Redis != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error {
				return rt.Redis.Ping(ctx).Err()
			},
		})
	}
	return checks
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func fallbackIdentity(cfg *config.Config) *domain.SendingIdentity {
	return &domain.SendingIdentity{
		Name:     "fallback",
		Provider: domain.ProviderCustom,
		Address:  cfg.FallbackSMTPFrom,
		SMTPHost: cfg.FallbackSMTPHost,
		SMTPPort: cfg.FallbackSMTPPort,
		Username: cfg.FallbackSMTPUsername,
		Secret:   cfg.FallbackSMTPPassword,
		Active:   true,
	}
}
