package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryRecords() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_delivery_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryRecordModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_records_campaign_recipient ON delivery_records (campaign_id, recipient) WHERE campaign_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_records_recipient_status ON delivery_records (recipient, status)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryRecordModel{})
		},
	}
}
