package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createSendingIdentities() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_sending_identities",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SendingIdentityModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_identities_active_count ON sending_identities (send_count) WHERE active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SendingIdentityModel{})
		},
	}
}
