package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const counterResetSpec = "0 0 * * *"

// CounterReset zeroes identity send counters at local midnight. Counters read
// as zero on a new day regardless; the reset keeps the stored rows tidy.
type CounterReset struct {
	identities repository.IdentityRepository
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

func NewCounterReset(identities repository.IdentityRepository, location *time.Location, logger *zap.Logger) *CounterReset {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterReset{
		identities: identities,
		location:   location,
		logger:     logger,
		now:        time.Now,
	}
}

// Start runs the midnight job until ctx is cancelled.
func (c *CounterReset) Start(ctx context.Context) error {
	scheduler := cron.New(cron.WithLocation(c.location))
	if _, err := scheduler.AddFunc(counterResetSpec, func() {
		if _, err := c.ResetNow(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("daily counter reset failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule counter reset: %w", err)
	}

	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

// ResetNow zeroes every counter that belongs to a day other than today.
func (c *CounterReset) ResetNow(ctx context.Context) (int64, error) {
	day := domain.DayKey(c.now(), c.location)
	reset, err := c.identities.ResetDailyCounts(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily counts: %w", err)
	}
	c.logger.Info("daily send counters reset", zap.String("day", day), zap.Int64("identities", reset))
	return reset, nil
}
