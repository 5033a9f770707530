package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultTaskMaxRetries = 3

// EnqueueOptions tunes a new task. Zero values take the service defaults.
type EnqueueOptions struct {
	Priority    domain.Priority
	ScheduledAt time.Time
	MaxRetries  *int
}

// TaskEnqueuer creates automation tasks.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload domain.TaskPayload, opts EnqueueOptions) (*domain.AutomationTask, error)
}

type TaskService struct {
	tasks      repository.TaskRepository
	logger     *zap.Logger
	maxRetries int
	grace      time.Duration
	now        func() time.Time
}

func NewTaskService(tasks repository.TaskRepository, maxRetries int, grace time.Duration, logger *zap.Logger) (*TaskService, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("task max retries must be >= 0, got %d", maxRetries)
	}
	if grace < 0 {
		grace = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TaskService{
		tasks:      tasks,
		logger:     logger,
		maxRetries: maxRetries,
		grace:      grace,
		now:        time.Now,
	}, nil
}

// Enqueue stores a pending task. scheduledAt may lie in the past by at most the
// grace window; an unset scheduledAt means now.
func (s *TaskService) Enqueue(ctx context.Context, payload domain.TaskPayload, opts EnqueueOptions) (*domain.AutomationTask, error) {
	taskType, raw, err := domain.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	scheduledAt := opts.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	if scheduledAt.Before(now.Add(-s.grace)) {
		return nil, fmt.Errorf("%w: scheduledAt %s is in the past", domain.ErrValidation, scheduledAt.UTC().Format(time.RFC3339))
	}

	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	maxRetries := s.maxRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	task := &domain.AutomationTask{
		Type:        taskType,
		Priority:    priority,
		Payload:     raw,
		Status:      domain.TaskStatusPending,
		ScheduledAt: scheduledAt.UTC(),
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Debug("task enqueued",
		zap.String("taskId", task.ID),
		zap.String("type", task.Type.String()),
		zap.Time("scheduledAt", task.ScheduledAt),
	)

	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (*domain.AutomationTask, error) {
	return s.tasks.GetByID(ctx, id)
}

// Stats counts tasks per status. Every status is present, zero when unused.
func (s *TaskService) Stats(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	counts, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	stats := make(map[domain.TaskStatus]int64, len(domain.TaskStatuses()))
	for _, status := range domain.TaskStatuses() {
		stats[status] = 0
	}
	for _, c := range counts {
		stats[c.Status] = c.Count
	}
	return stats, nil
}

func (s *TaskService) List(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid task status %q", domain.ErrValidation, status)
	}
	return s.tasks.ListByStatus(ctx, status, limit)
}

// Requeue makes a failed or dead-lettered task due now with a fresh retry budget.
func (s *TaskService) Requeue(ctx context.Context, id string) error {
	if err := s.tasks.Requeue(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("task requeued", zap.String("taskId", id))
	return nil
}
