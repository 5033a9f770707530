package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SendLogRepository interface {
	CountOn(ctx context.Context, day string) (int, error)
	Increment(ctx context.Context, day string, at time.Time) error
}

type GormSendLogRepo struct {
	db *gorm.DB
}

func NewGormSendLogRepo(db *gorm.DB) *GormSendLogRepo {
	return &GormSendLogRepo{db: db}
}

func (r *GormSendLogRepo) CountOn(ctx context.Context, day string) (int, error) {
	var model SendLogModel
	err := r.db.WithContext(ctx).First(&model, "day = ?", day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return model.Count, nil
}

func (r *GormSendLogRepo) Increment(ctx context.Context, day string, at time.Time) error {
	at = at.UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":      gorm.Expr("send_logs.count + 1"),
				"updated_at": at,
			}),
		}).
		Create(&SendLogModel{Day: day, Count: 1, UpdatedAt: at}).Error
}
