package inventory

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/surgecart/flashsale-api/internal/types"
)

// Every stock mutation in the system funnels through these helpers,
// inside a transaction, so the lock-read-check-write discipline is the
// same on all four mutation paths.

// GetForUpdate loads the product row under an exclusive row lock.
// The lock is held until the surrounding transaction commits.
func GetForUpdate(tx *gorm.DB, productID string) (*types.Product, error) {
	var product types.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// AdjustStock applies delta to the product's stock counter and bumps
// its version. Callers must already hold the product's row lock and
// have verified the resulting stock cannot go negative.
func AdjustStock(tx *gorm.DB, productID string, delta int) error {
	result := tx.Model(&types.Product{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"stock":   gorm.Expr("stock + ?", delta),
			"version": gorm.Expr("version + ?", 1),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
