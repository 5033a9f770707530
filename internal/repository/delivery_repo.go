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

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.DeliveryRecord) error
	GetByToken(ctx context.Context, token string) (*domain.DeliveryRecord, error)
	// Upsert writes the record keyed by tracking token, replacing the outcome
	// fields of an existing drafted row.
	Upsert(ctx context.Context, d *domain.DeliveryRecord) error
	// MarkOpened sets openedAt once. It reports whether this call was the first hit.
	MarkOpened(ctx context.Context, token string, at time.Time) (bool, error)
	// MarkClicked sets clickedAt once and backfills openedAt.
	MarkClicked(ctx context.Context, token string, at time.Time) (bool, error)
	MarkResponded(ctx context.Context, token string, at time.Time) error
	// FindOutstanding returns drafted or sent records for recipients in active
	// campaigns other than excludeCampaignID.
	FindOutstanding(ctx context.Context, recipients []string, excludeCampaignID string) ([]domain.DeliveryRecord, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.DeliveryRecord) error {
	if d != nil && d.ID == "" {
		d.ID = uuid.NewString()
	}
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByToken(ctx context.Context, token string) (*domain.DeliveryRecord, error) {
	var model DeliveryRecordModel
	err := r.db.WithContext(ctx).First(&model, "tracking_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) Upsert(ctx context.Context, d *domain.DeliveryRecord) error {
	if d == nil {
		return domain.ErrValidation
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	model := deliveryModelFromDomain(d)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tracking_token"}},
			DoUpdates: append(clause.AssignmentColumns([]string{
				"identity_id", "scheduled_email_id", "subject", "body",
				"bounce_type", "error", "sent_at", "bounced_at", "updated_at",
			}), clause.Assignment{
				// A tracking hit can land before the send is recorded.
				Column: clause.Column{Name: "status"},
				Value: gorm.Expr("CASE WHEN delivery_records.status IN ? THEN delivery_records.status ELSE excluded.status END",
					[]domain.DeliveryStatus{domain.DeliveryOpened, domain.DeliveryClicked, domain.DeliveryResponded}),
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	stored, err := r.GetByToken(ctx, d.TrackingToken)
	if err != nil {
		return err
	}
	*d = *stored
	return nil
}

func (r *GormDeliveryRepo) MarkOpened(ctx context.Context, token string, at time.Time) (bool, error) {
	at = at.UTC()
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("tracking_token = ? AND opened_at IS NULL AND status <> ?", token, domain.DeliveryBounced).
		Updates(map[string]any{
			"opened_at": at,
			"status": gorm.Expr("CASE WHEN status IN ? THEN ? ELSE status END",
				[]domain.DeliveryStatus{domain.DeliveryDrafted, domain.DeliverySent}, domain.DeliveryOpened),
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) MarkClicked(ctx context.Context, token string, at time.Time) (bool, error) {
	at = at.UTC()
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("tracking_token = ? AND clicked_at IS NULL AND status <> ?", token, domain.DeliveryBounced).
		Updates(map[string]any{
			"clicked_at": at,
			"opened_at":  gorm.Expr("COALESCE(opened_at, ?)", at),
			"status": gorm.Expr("CASE WHEN status IN ? THEN ? ELSE status END",
				[]domain.DeliveryStatus{domain.DeliveryDrafted, domain.DeliverySent, domain.DeliveryOpened}, domain.DeliveryClicked),
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) MarkResponded(ctx context.Context, token string, at time.Time) error {
	at = at.UTC()
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("tracking_token = ? AND status <> ?", token, domain.DeliveryBounced).
		Updates(map[string]any{
			"status":       domain.DeliveryResponded,
			"responded_at": gorm.Expr("COALESCE(responded_at, ?)", at),
			"updated_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByToken(ctx, token); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) FindOutstanding(ctx context.Context, recipients []string, excludeCampaignID string) ([]domain.DeliveryRecord, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Joins("JOIN campaigns ON campaigns.id = delivery_records.campaign_id").
		Where("campaigns.status = ?", domain.CampaignActive).
		Where("delivery_records.campaign_id <> ?", excludeCampaignID).
		Where("delivery_records.recipient IN ?", recipients).
		Where("delivery_records.status IN ?", []domain.DeliveryStatus{domain.DeliveryDrafted, domain.DeliverySent}).
		Order("delivery_records.recipient ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}
	return records, nil
}
