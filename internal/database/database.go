package database

import (
	"fmt"
	"os"

	"github.com/surgecart/flashsale-api/internal/database/migrations"
	"github.com/surgecart/flashsale-api/internal/types"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection.
// A MySQL DSN in DB_DSN selects the production store; otherwise a
// local sqlite file (DB_PATH, default flashsale.db) is used.
func NewDatabase() (*gorm.DB, error) {
	var dialector gorm.Dialector
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		dialector = mysql.Open(dsn)
	} else {
		path := os.Getenv("DB_PATH")
		if path == "" {
			path = "flashsale.db"
		}
		dialector = sqlite.Open(path)
	}

	return Open(dialector)
}

// Open connects with the given dialector and runs migrations.
// TranslateError is enabled so unique-key violations surface as
// gorm.ErrDuplicatedKey regardless of driver; webhook deduplication
// depends on that.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddHoldSweepIndex(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Product{},
		&types.Order{},
		&types.WebhookLog{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// SeedProducts inserts the demo catalogue when the products table is
// empty, so a fresh install has stock to sell against.
func SeedProducts(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	products := []types.Product{
		{ProductID: "PRD_limited-sneaker", Name: "Limited Edition Sneaker", Price: 199.99, Stock: 100},
		{ProductID: "PRD_console-bundle", Name: "Game Console Bundle", Price: 549.00, Stock: 50},
		{ProductID: "PRD_collector-figure", Name: "Collector Figure", Price: 89.50, Stock: 200},
	}

	return db.Create(&products).Error
}
