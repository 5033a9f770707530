package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createScheduledEmails() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_scheduled_emails",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduledEmailModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_scheduled_emails_status_at ON scheduled_emails (status, scheduled_at)`,
				`CREATE INDEX IF NOT EXISTS idx_scheduled_emails_sequence ON scheduled_emails (sequence_id, sequence_step) WHERE sequence_id IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduledEmailModel{})
		},
	}
}
