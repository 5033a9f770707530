package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createSuppressionAndSendLogs() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_suppression_and_send_logs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.SuppressionModel{}, &repository.SendLogModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SendLogModel{}, &repository.SuppressionModel{})
		},
	}
}
