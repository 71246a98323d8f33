package migrations

import (
	"github.com/surgecart/flashsale-api/internal/types"
	"gorm.io/gorm"
)

// AddHoldSweepIndex ensures the composite (status, expires_at) index
// the expiry sweep scans on exists, for deployments whose holds table
// predates it.
func AddHoldSweepIndex(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Hold{}); err != nil {
		return err
	}

	if !db.Migrator().HasIndex(&types.Hold{}, "idx_holds_status_expires") {
		return db.Migrator().CreateIndex(&types.Hold{}, "idx_holds_status_expires")
	}

	return nil
}
