package holds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/inventory"
	"github.com/surgecart/flashsale-api/internal/types"
)

type Database struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewDatabase(db *gorm.DB, c cache.Cache) *Database {
	return &Database{db: db, cache: c}
}

// CreateHold runs the reservation protocol in one transaction: lock
// the product row, check stock, decrement, insert the hold, invalidate
// the product's cache entry, commit. A failed stock check aborts the
// transaction with no side effects.
func (d *Database) CreateHold(ctx context.Context, productID string, quantity int) (*types.Hold, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	product, err := inventory.GetForUpdate(tx, productID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if product.Stock < quantity {
		tx.Rollback()
		return nil, &InsufficientStockError{Available: product.Stock}
	}

	if err := inventory.AdjustStock(tx, productID, -quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	hold := &types.Hold{
		HoldID:    "HLD_" + uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		Status:    types.HoldStatusActive,
		ExpiresAt: time.Now().Add(types.HoldWindow),
	}

	if err := tx.Create(hold).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := d.cache.Delete(ctx, cache.ProductKey(productID)); err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("failed to invalidate product cache")
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return hold, nil
}

// GetHold retrieves a hold by its ID
func (d *Database) GetHold(holdID string) (*types.Hold, error) {
	var hold types.Hold
	if err := d.db.Where("hold_id = ?", holdID).First(&hold).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}
