package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SuppressionRepository interface {
	IsSuppressed(ctx context.Context, address string) (bool, error)
	// Add appends an entry. Adding an address that is already suppressed is a
	// no-op and reports false.
	Add(ctx context.Context, s *domain.SuppressionEntry) (bool, error)
	List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error)
}

type GormSuppressionRepo struct {
	db *gorm.DB
}

func NewGormSuppressionRepo(db *gorm.DB) *GormSuppressionRepo {
	return &GormSuppressionRepo{db: db}
}

func (r *GormSuppressionRepo) IsSuppressed(ctx context.Context, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SuppressionModel{}).
		Where("address = ?", address).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormSuppressionRepo) Add(ctx context.Context, s *domain.SuppressionEntry) (bool, error) {
	if s == nil {
		return false, domain.ErrValidation
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	model := suppressionModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormSuppressionRepo) List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	if limit < 1 {
		limit = 100
	}

	var models []SuppressionModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.SuppressionEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *suppressionModelToDomain(&models[i]))
	}
	return entries, nil
}
