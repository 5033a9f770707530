package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatusCount struct {
	Status domain.TaskStatus `gorm:"column:status"`
	Count  int64             `gorm:"column:count"`
}

type TaskRepository interface {
	Create(ctx context.Context, t *domain.AutomationTask) error
	GetByID(ctx context.Context, id string) (*domain.AutomationTask, error)
	// ClaimDue moves up to limit due pending tasks to processing and returns
	// them in dispatch order.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.AutomationTask, error)
	// UpdateClaimed persists the outcome of a task the caller claimed. It fails
	// with ErrConflict when the task is no longer processing.
	UpdateClaimed(ctx context.Context, t *domain.AutomationTask) error
	ListStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]domain.AutomationTask, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	ListByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error)
	Requeue(ctx context.Context, id string, at time.Time) error
}

type GormTaskRepo struct {
	db *gorm.DB
}

func NewGormTaskRepo(db *gorm.DB) *GormTaskRepo {
	return &GormTaskRepo{db: db}
}

func (r *GormTaskRepo) Create(ctx context.Context, t *domain.AutomationTask) error {
	if t != nil && t.ID == "" {
		t.ID = uuid.NewString()
	}
	model := taskModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *taskModelToDomain(model)
	}
	return nil
}

func (r *GormTaskRepo) GetByID(ctx context.Context, id string) (*domain.AutomationTask, error) {
	var model TaskModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return taskModelToDomain(&model), nil
}

func (r *GormTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.AutomationTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()

	var claimed []TaskModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []TaskModel
		err := tx.
			Clauses(skipLocked(tx)...).
			Where("status = ? AND scheduled_at <= ?", domain.TaskStatusPending, now).
			Order("priority_rank ASC").
			Order("scheduled_at ASC").
			Order("created_at ASC").
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]string, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
		}

		err = tx.Model(&TaskModel{}).
			Where("id IN ? AND status = ?", ids, domain.TaskStatusPending).
			Updates(map[string]any{
				"status":                domain.TaskStatusProcessing,
				"processing_started_at": now,
				"updated_at":            now,
			}).Error
		if err != nil {
			return err
		}

		for i := range models {
			models[i].Status = domain.TaskStatusProcessing
			started := now
			models[i].ProcessingStartedAt = &started
			models[i].UpdatedAt = now
		}
		claimed = models
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tasksToDomain(claimed), nil
}

func (r *GormTaskRepo) UpdateClaimed(ctx context.Context, t *domain.AutomationTask) error {
	if t == nil {
		return domain.ErrValidation
	}
	model := taskModelFromDomain(t)

	result := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("id = ? AND status = ?", t.ID, domain.TaskStatusProcessing).
		Select("status", "scheduled_at", "retry_count", "error_log", "processing_started_at", "completed_at", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormTaskRepo) ListStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]domain.AutomationTask, error) {
	var models []TaskModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ?", domain.TaskStatusProcessing, startedBefore.UTC()).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return tasksToDomain(models), nil
}

func (r *GormTaskRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormTaskRepo) ListByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.AutomationTask, error) {
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 500)

	var models []TaskModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return tasksToDomain(models), nil
}

func (r *GormTaskRepo) Requeue(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	result := r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("id = ? AND status IN ?", id, []domain.TaskStatus{domain.TaskStatusFailed, domain.TaskStatusDeadLetter}).
		Updates(map[string]any{
			"status":                domain.TaskStatusPending,
			"retry_count":           0,
			"scheduled_at":          at,
			"processing_started_at": nil,
			"completed_at":          nil,
			"updated_at":            at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

// skipLocked lets concurrent claimers pass over rows another transaction holds.
// Only Postgres understands the clause.
func skipLocked(db *gorm.DB) []clause.Expression {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return []clause.Expression{clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}}
}

func tasksToDomain(models []TaskModel) []domain.AutomationTask {
	tasks := make([]domain.AutomationTask, 0, len(models))
	for i := range models {
		tasks = append(tasks, *taskModelToDomain(&models[i]))
	}
	return tasks
}
