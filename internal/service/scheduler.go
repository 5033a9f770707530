package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/events"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSchedulerPollInterval = 15 * time.Second
	defaultSchedulerWorkers      = 3
	defaultTaskTimeout           = 2 * time.Minute
	defaultLivenessWindow        = 10 * time.Minute
	defaultRetryBaseDelay        = 30 * time.Second
	defaultRetryMaxDelay         = 30 * time.Minute
	maxRetryJitterMillis         = 1000
	staleScanLimit               = 100
)

type SchedulerConfig struct {
	PollInterval   time.Duration
	Workers        int
	TaskTimeout    time.Duration
	LivenessWindow time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// Location decides where the next local day starts for quota deferrals.
	Location *time.Location
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultSchedulerPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultSchedulerWorkers
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = defaultTaskTimeout
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = defaultLivenessWindow
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Scheduler polls for due tasks, runs them on a bounded worker pool and
// records each outcome back on the task.
type Scheduler struct {
	tasks     repository.TaskRepository
	registry  *HandlerRegistry
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	cfg       SchedulerConfig
	inFlight  atomic.Int64
	now       func() time.Time
	randIntn  func(n int) int
}

func NewScheduler(
	tasks repository.TaskRepository,
	registry *HandlerRegistry,
	publisher events.Publisher,
	cfg SchedulerConfig,
	logger *zap.Logger,
) (*Scheduler, error) {
	if tasks == nil || registry == nil {
		return nil, fmt.Errorf("scheduler requires a task repository and a handler registry")
	}
	if err := registry.Validate(domain.TaskTypes()); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	if cfg.LivenessWindow <= cfg.TaskTimeout {
		return nil, fmt.Errorf("liveness window %s must exceed task timeout %s", cfg.LivenessWindow, cfg.TaskTimeout)
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("retry max delay %s is below base delay %s", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		tasks:     tasks,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		randIntn:  rand.Intn,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start polls until ctx is cancelled. Tasks already claimed are run to
// completion before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	jobs := make(chan domain.AutomationTask, s.cfg.Workers)

	var g errgroup.Group
	for i := 0; i < s.cfg.Workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			for task := range jobs {
				s.execute(ctx, task)
			}
			s.logger.Debug("scheduler worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	s.logger.Info("scheduler started",
		zap.Int("workers", s.cfg.Workers),
		zap.Duration("pollInterval", s.cfg.PollInterval),
	)

	if err := s.poll(ctx, jobs); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := s.poll(ctx, jobs); err != nil {
				if ctx.Err() != nil {
					break loop
				}
				s.logger.Error("scheduler poll failed", zap.Error(err))
			}
		}
	}

	close(jobs)
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// RunOnce reaps stale tasks, claims up to one batch and waits for the batch to
// finish. It returns the number of tasks executed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if err := s.reapStale(ctx); err != nil {
		return 0, err
	}

	claimed, err := s.claim(ctx)
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, task := range claimed {
		g.Go(func() error {
			s.execute(ctx, task)
			return nil
		})
	}
	return len(claimed), g.Wait()
}

func (s *Scheduler) poll(ctx context.Context, jobs chan<- domain.AutomationTask) error {
	if err := s.reapStale(ctx); err != nil {
		return err
	}

	claimed, err := s.claim(ctx)
	if err != nil {
		return err
	}
	for _, task := range claimed {
		jobs <- task
	}
	return nil
}

// claim takes as many due tasks as there are idle workers.
func (s *Scheduler) claim(ctx context.Context) ([]domain.AutomationTask, error) {
	free := s.cfg.Workers - int(s.inFlight.Load())
	if free <= 0 {
		return nil, nil
	}

	claimed, err := s.tasks.ClaimDue(ctx, s.now().UTC(), free)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due tasks: %w", err)
	}
	s.inFlight.Add(int64(len(claimed)))

	if len(claimed) > 0 {
		s.logger.Debug("claimed due tasks", zap.Int("count", len(claimed)))
	}
	return claimed, nil
}

// reapStale fails tasks whose worker stopped reporting within the liveness window.
func (s *Scheduler) reapStale(ctx context.Context) error {
	startedBefore := s.now().UTC().Add(-s.cfg.LivenessWindow)

	stale, err := s.tasks.ListStaleProcessing(ctx, startedBefore, staleScanLimit)
	if err != nil {
		return fmt.Errorf("failed to list stale tasks: %w", err)
	}

	for i := range stale {
		task := stale[i]
		s.logger.Warn("reaping stale task",
			zap.String("taskId", task.ID),
			zap.String("type", task.Type.String()),
		)
		s.finalize(ctx, &task, fmt.Errorf("%w: processing for longer than %s", domain.ErrLivenessExceeded, s.cfg.LivenessWindow))
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, task domain.AutomationTask) {
	defer s.inFlight.Add(-1)

	defer s.metrics.TaskStarted(task.Type.String())()

	// Shutdown must not abort a task half way; only the task timeout does.
	base := context.WithoutCancel(ctx)
	taskCtx, cancel := context.WithTimeout(base, s.cfg.TaskTimeout)
	defer cancel()

	err := s.run(taskCtx, task)
	s.finalize(base, &task, err)
}

func (s *Scheduler) run(ctx context.Context, task domain.AutomationTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()

	return s.registry.Dispatch(ctx, task)
}

// finalize moves a processing task to its next status.
func (s *Scheduler) finalize(ctx context.Context, task *domain.AutomationTask, runErr error) {
	now := s.now().UTC()
	task.ProcessingStartedAt = nil

	var outcome string
	switch {
	case runErr == nil:
		outcome = "completed"
		task.Status = domain.TaskStatusCompleted
		task.CompletedAt = &now

	case errors.Is(runErr, domain.ErrQuotaExceeded):
		// Out of quota is not a failure of the task; it waits for tomorrow.
		outcome = "deferred"
		task.Status = domain.TaskStatusPending
		task.ScheduledAt = domain.NextDayStart(now, s.cfg.Location).UTC()
		task.AppendError(now, runErr.Error())

	case !domain.IsRetryable(runErr):
		outcome = "failed"
		task.Status = domain.TaskStatusFailed
		task.AppendError(now, runErr.Error())

	case task.RetryCount < task.MaxRetries:
		outcome = "retry"
		task.RetryCount++
		task.Status = domain.TaskStatusPending
		task.ScheduledAt = now.Add(s.computeRetryDelay(task.RetryCount))
		task.AppendError(now, runErr.Error())
		s.metrics.IncTaskRetry(task.Type.String())

	default:
		outcome = "dead_letter"
		task.Status = domain.TaskStatusDeadLetter
		task.AppendError(now, runErr.Error())
	}
	task.UpdatedAt = now

	if err := s.tasks.UpdateClaimed(ctx, task); err != nil {
		s.logger.Error("failed to record task outcome",
			zap.String("taskId", task.ID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return
	}

	s.metrics.IncTaskProcessed(task.Type.String(), outcome)

	if task.Status == domain.TaskStatusFailed || task.Status == domain.TaskStatusDeadLetter {
		if err := s.registry.Abandon(ctx, *task, runErr); err != nil {
			s.logger.Error("failed to clean up after abandoned task",
				zap.String("taskId", task.ID),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
	}

	fields := []zap.Field{
		zap.String("taskId", task.ID),
		zap.String("type", task.Type.String()),
		zap.String("outcome", outcome),
		zap.Int("retryCount", task.RetryCount),
	}
	switch outcome {
	case "completed":
		s.logger.Debug("task completed", fields...)
	case "failed":
		s.logger.Warn("task failed", append(fields, zap.Error(runErr))...)
		s.publishTaskEvent(ctx, events.TaskFailed, task, runErr)
	case "dead_letter":
		s.logger.Error("task dead-lettered", append(fields, zap.Error(runErr))...)
		s.publishTaskEvent(ctx, events.TaskDeadLetter, task, runErr)
	default:
		s.logger.Info("task rescheduled", append(fields, zap.Time("scheduledAt", task.ScheduledAt), zap.Error(runErr))...)
	}
}

func (s *Scheduler) publishTaskEvent(ctx context.Context, eventType string, task *domain.AutomationTask, runErr error) {
	event := events.New(eventType, s.now(), map[string]string{
		"taskId":     task.ID,
		"type":       task.Type.String(),
		"retryCount": fmt.Sprintf("%d", task.RetryCount),
		"error":      runErr.Error(),
	})
	publishCtx, cancel := detach(ctx, eventPublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, event); err != nil {
		s.logger.Warn("failed to publish task event",
			zap.String("taskId", task.ID),
			zap.String("event", eventType),
			zap.Error(err),
		)
	}
}

// computeRetryDelay doubles the base delay per attempt up to the max and adds
// up to a second of jitter.
func (s *Scheduler) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := s.cfg.RetryBaseDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
			break
		}
	}
	if delay > s.cfg.RetryMaxDelay {
		delay = s.cfg.RetryMaxDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return min(delay+time.Duration(jitterMillis)*time.Millisecond, s.cfg.RetryMaxDelay)
}
