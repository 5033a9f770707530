package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"gorm.io/gorm"
)

type ScheduledEmailRepository interface {
	Create(ctx context.Context, e *domain.ScheduledEmail) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledEmail, error)
	ListByStatus(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error)
	SetTaskID(ctx context.Context, id string, taskID string) error
	MarkSent(ctx context.Context, id string, identityID *string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errText string) error
	RecordAttemptError(ctx context.Context, id string, errText string) error
	Cancel(ctx context.Context, id string) error
	// Retry moves a failed email back to pending with its error cleared.
	Retry(ctx context.Context, id string, scheduledAt time.Time) error
}

type GormScheduledEmailRepo struct {
	db *gorm.DB
}

func NewGormScheduledEmailRepo(db *gorm.DB) *GormScheduledEmailRepo {
	return &GormScheduledEmailRepo{db: db}
}

func (r *GormScheduledEmailRepo) Create(ctx context.Context, e *domain.ScheduledEmail) error {
	if e != nil && e.ID == "" {
		e.ID = uuid.NewString()
	}
	model := scheduledEmailModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *scheduledEmailModelToDomain(model)
	}
	return nil
}

func (r *GormScheduledEmailRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledEmail, error) {
	var model ScheduledEmailModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return scheduledEmailModelToDomain(&model), nil
}

func (r *GormScheduledEmailRepo) ListByStatus(ctx context.Context, status domain.ScheduledEmailStatus, limit int) ([]domain.ScheduledEmail, error) {
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 500)

	var models []ScheduledEmailModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	emails := make([]domain.ScheduledEmail, 0, len(models))
	for i := range models {
		emails = append(emails, *scheduledEmailModelToDomain(&models[i]))
	}
	return emails, nil
}

func (r *GormScheduledEmailRepo) SetTaskID(ctx context.Context, id string, taskID string) error {
	return r.update(ctx, id, nil, map[string]any{"task_id": taskID})
}

func (r *GormScheduledEmailRepo) MarkSent(ctx context.Context, id string, identityID *string, sentAt time.Time) error {
	return r.update(ctx, id, []domain.ScheduledEmailStatus{domain.ScheduledEmailPending}, map[string]any{
		"status":      domain.ScheduledEmailSent,
		"sent_at":     sentAt.UTC(),
		"identity_id": identityID,
		"error":       "",
	})
}

func (r *GormScheduledEmailRepo) MarkFailed(ctx context.Context, id string, errText string) error {
	return r.update(ctx, id, []domain.ScheduledEmailStatus{domain.ScheduledEmailPending}, map[string]any{
		"status": domain.ScheduledEmailFailed,
		"error":  errText,
	})
}

// RecordAttemptError stores the latest transient failure without leaving pending.
func (r *GormScheduledEmailRepo) RecordAttemptError(ctx context.Context, id string, errText string) error {
	return r.update(ctx, id, []domain.ScheduledEmailStatus{domain.ScheduledEmailPending}, map[string]any{
		"error": errText,
	})
}

func (r *GormScheduledEmailRepo) Cancel(ctx context.Context, id string) error {
	return r.update(ctx, id, []domain.ScheduledEmailStatus{domain.ScheduledEmailPending}, map[string]any{
		"status": domain.ScheduledEmailCancelled,
	})
}

func (r *GormScheduledEmailRepo) Retry(ctx context.Context, id string, scheduledAt time.Time) error {
	return r.update(ctx, id, []domain.ScheduledEmailStatus{domain.ScheduledEmailFailed}, map[string]any{
		"status":       domain.ScheduledEmailPending,
		"error":        "",
		"scheduled_at": scheduledAt.UTC(),
	})
}

// update applies values when the row is in one of from. A nil from matches any
// status. A row in another status yields ErrConflict.
func (r *GormScheduledEmailRepo) update(ctx context.Context, id string, from []domain.ScheduledEmailStatus, values map[string]any) error {
	query := r.db.WithContext(ctx).Model(&ScheduledEmailModel{}).Where("id = ?", id)
	if len(from) > 0 {
		query = query.Where("status IN ?", from)
	}

	result := query.Updates(values)
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
