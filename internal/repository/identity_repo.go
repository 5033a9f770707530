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

type IdentityRepository interface {
	// Upsert inserts an identity or updates the existing one with the same address.
	// Send counters and lastUsedAt of an existing row are left untouched.
	Upsert(ctx context.Context, i *domain.SendingIdentity) error
	GetByID(ctx context.Context, id string) (*domain.SendingIdentity, error)
	List(ctx context.Context) ([]domain.SendingIdentity, error)
	ListActive(ctx context.Context) ([]domain.SendingIdentity, error)
	Count(ctx context.Context) (int64, error)
	// RecordSend increments today's count in one statement, restarting it when
	// the stored count belongs to another day.
	RecordSend(ctx context.Context, id string, day string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	ResetDailyCounts(ctx context.Context, day string) (int64, error)
}

type GormIdentityRepo struct {
	db *gorm.DB
}

func NewGormIdentityRepo(db *gorm.DB) *GormIdentityRepo {
	return &GormIdentityRepo{db: db}
}

func (r *GormIdentityRepo) Upsert(ctx context.Context, i *domain.SendingIdentity) error {
	if i == nil {
		return domain.ErrValidation
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	model := identityModelFromDomain(i)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "provider", "smtp_host", "smtp_port", "username", "secret",
				"daily_limit", "active", "warmup_enabled", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	var stored SendingIdentityModel
	if err := r.db.WithContext(ctx).First(&stored, "address = ?", i.Address).Error; err != nil {
		return err
	}
	*i = *identityModelToDomain(&stored)
	return nil
}

func (r *GormIdentityRepo) GetByID(ctx context.Context, id string) (*domain.SendingIdentity, error) {
	var model SendingIdentityModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return identityModelToDomain(&model), nil
}

func (r *GormIdentityRepo) List(ctx context.Context) ([]domain.SendingIdentity, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *GormIdentityRepo) ListActive(ctx context.Context) ([]domain.SendingIdentity, error) {
	return r.find(r.db.WithContext(ctx).Where("active = ?", true))
}

func (r *GormIdentityRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&SendingIdentityModel{}).Count(&total).Error
	return total, err
}

func (r *GormIdentityRepo) RecordSend(ctx context.Context, id string, day string, at time.Time) error {
	at = at.UTC()
	result := r.db.WithContext(ctx).
		Model(&SendingIdentityModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"send_count":      gorm.Expr("CASE WHEN send_count_date = ? THEN send_count + 1 ELSE 1 END", day),
			"send_count_date": day,
			"last_used_at":    at,
			"updated_at":      at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormIdentityRepo) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&SendingIdentityModel{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormIdentityRepo) ResetDailyCounts(ctx context.Context, day string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&SendingIdentityModel{}).
		Where("send_count_date IS NULL OR send_count_date <> ?", day).
		Updates(map[string]any{
			"send_count":      0,
			"send_count_date": day,
		})
	return result.RowsAffected, result.Error
}

func (r *GormIdentityRepo) find(query *gorm.DB) ([]domain.SendingIdentity, error) {
	var models []SendingIdentityModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	identities := make([]domain.SendingIdentity, 0, len(models))
	for i := range models {
		identities = append(identities, *identityModelToDomain(&models[i]))
	}
	return identities, nil
}
