package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/outreach-engine/internal/warmup"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type Config struct {
	DatabaseDSN   string `env:"DATABASE_DSN,required=true"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL,required=true"`
	RedisURL      string `env:"REDIS_URL"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	APIPort       int    `env:"API_PORT,default=8080"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
	Timezone      string `env:"TIMEZONE,default=UTC"`

	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL,default=15s"`
	SchedulerWorkers      int           `env:"SCHEDULER_WORKERS,default=3"`
	TaskTimeout           time.Duration `env:"TASK_TIMEOUT,default=2m"`
	TaskLivenessWindow    time.Duration `env:"TASK_LIVENESS_WINDOW,default=10m"`
	TaskMaxRetries        int           `env:"TASK_MAX_RETRIES,default=3"`
	TaskRetryBaseDelay    time.Duration `env:"TASK_RETRY_BASE_DELAY,default=30s"`
	TaskRetryMaxDelay     time.Duration `env:"TASK_RETRY_MAX_DELAY,default=30m"`
	EnqueueGraceWindow    time.Duration `env:"ENQUEUE_GRACE_WINDOW,default=5m"`

	RateLimitBackend     string        `env:"RATE_LIMIT_BACKEND,default=memory"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	RateLimitMaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS,default=60"`

	GlobalDailyLimit    int     `env:"GLOBAL_DAILY_LIMIT,default=500"`
	WarmupEnabled       bool    `env:"WARMUP_ENABLED,default=false"`
	WarmupStartDate     string  `env:"WARMUP_START_DATE"`
	WarmupInitialVolume int     `env:"WARMUP_INITIAL_VOLUME,default=5"`
	WarmupGrowthFactor  float64 `env:"WARMUP_GROWTH_FACTOR,default=2"`
	WarmupStepDays      int     `env:"WARMUP_STEP_DAYS,default=3"`
	WarmupRampDays      int     `env:"WARMUP_RAMP_DAYS,default=30"`

	IdentitiesFile string `env:"IDENTITIES_FILE"`

	FallbackSMTPHost     string `env:"FALLBACK_SMTP_HOST"`
	FallbackSMTPPort     int    `env:"FALLBACK_SMTP_PORT,default=587"`
	FallbackSMTPUsername string `env:"FALLBACK_SMTP_USERNAME"`
	FallbackSMTPPassword string `env:"FALLBACK_SMTP_PASSWORD"`
	FallbackSMTPFrom     string `env:"FALLBACK_SMTP_FROM"`

	SMTPConnectTimeout time.Duration `env:"SMTP_CONNECT_TIMEOUT,default=8s"`
	SMTPSendTimeout    time.Duration `env:"SMTP_SEND_TIMEOUT,default=30s"`

	UnsubscribeMessage string `env:"UNSUBSCRIBE_MESSAGE"`
	AuditServiceURL    string `env:"AUDIT_SERVICE_URL"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SchedulerWorkers <= 0 {
		return fmt.Errorf("SCHEDULER_WORKERS must be positive, got %d", c.SchedulerWorkers)
	}
	if c.SchedulerPollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive")
	}
	if c.TaskMaxRetries < 0 {
		return fmt.Errorf("TASK_MAX_RETRIES must not be negative, got %d", c.TaskMaxRetries)
	}
	if c.TaskRetryBaseDelay <= 0 || c.TaskRetryMaxDelay < c.TaskRetryBaseDelay {
		return fmt.Errorf("TASK_RETRY_BASE_DELAY must be positive and not above TASK_RETRY_MAX_DELAY")
	}
	if c.RateLimitMaxRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.GlobalDailyLimit < 0 {
		return fmt.Errorf("GLOBAL_DAILY_LIMIT must not be negative, got %d", c.GlobalDailyLimit)
	}

	switch strings.ToLower(c.RateLimitBackend) {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.WarmupCurve().Validate(); err != nil {
		return fmt.Errorf("invalid warmup curve: %w", err)
	}
	if c.WarmupEnabled {
		if strings.TrimSpace(c.WarmupStartDate) == "" {
			return fmt.Errorf("WARMUP_START_DATE is required when WARMUP_ENABLED=true")
		}
		if _, err := c.WarmupStart(); err != nil {
			return err
		}
	}
	return nil
}

// Location is the timezone that day boundaries are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) WarmupCurve() warmup.Curve {
	return warmup.Curve{
		InitialVolume: c.WarmupInitialVolume,
		GrowthFactor:  c.WarmupGrowthFactor,
		StepDays:      c.WarmupStepDays,
		RampDays:      c.WarmupRampDays,
	}
}

// WarmupStart parses WARMUP_START_DATE in the configured timezone. A zero time
// is returned when the variable is unset.
func (c *Config) WarmupStart() (time.Time, error) {
	if strings.TrimSpace(c.WarmupStartDate) == "" {
		return time.Time{}, nil
	}
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	start, err := time.ParseInLocation("2006-01-02", c.WarmupStartDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid WARMUP_START_DATE %q: %w", c.WarmupStartDate, err)
	}
	return start, nil
}

func (c *Config) HasFallbackSMTP() bool {
	return strings.TrimSpace(c.FallbackSMTPHost) != "" && strings.TrimSpace(c.FallbackSMTPFrom) != ""
}
