package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	requestIDLocal = "requestid"
	skipWriteLocal = "tracking.skipWrite"
)

// RequestID takes X-Request-ID from the caller or generates one, echoes it on
// the response and carries it on the user context for logging.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(observability.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(requestIDLocal, id)
		c.Set(observability.RequestIDHeader, id)
		c.SetUserContext(observability.WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

// RateLimit rejects callers over the limit with 429.
func RateLimit(limiter ratelimit.RateLimiter, scope string, metrics *observability.Metrics, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if allowed(c, limiter, scope, metrics, logger) {
			return c.Next()
		}
		return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
	}
}

// TrackingRateLimit never rejects: over the limit the pixel or redirect is
// still served and only the engagement write is skipped.
func TrackingRateLimit(limiter ratelimit.RateLimiter, metrics *observability.Metrics, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !allowed(c, limiter, "tracking", metrics, logger) {
			c.Locals(skipWriteLocal, true)
		}
		return c.Next()
	}
}

func allowed(c *fiber.Ctx, limiter ratelimit.RateLimiter, scope string, metrics *observability.Metrics, logger *zap.Logger) bool {
	if limiter == nil {
		return true
	}

	ok, err := limiter.Allow(c.UserContext(), scope+":"+c.IP())
	if err != nil {
		// Fail open.
		observability.WithContextLogger(logger, c.UserContext()).Warn("rate limiter unavailable", zap.Error(err))
		return true
	}
	if !ok {
		metrics.IncRateLimited(scope)
	}
	return ok
}

func skipWrite(c *fiber.Ctx) bool {
	skip, _ := c.Locals(skipWriteLocal).(bool)
	return skip
}
