package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createAutomationTasks() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_automation_tasks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TaskModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_tasks_due ON automation_tasks (priority_rank, scheduled_at, created_at) WHERE status = 'pending'`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_processing ON automation_tasks (processing_started_at) WHERE status = 'processing'`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON automation_tasks (status, updated_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TaskModel{})
		},
	}
}
