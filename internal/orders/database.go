package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/surgecart/flashsale-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// ConvertHold consumes an active, unexpired hold and creates a pending
// order in one transaction. The hold row is locked before its status
// is re-checked, so the conversion and the expiry sweep can never both
// win the same hold. No stock moves here: the units were already
// deducted when the hold was created, conversion only transfers the
// reservation from hold to order.
func (d *Database) ConvertHold(holdID string) (*types.Order, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var hold types.Hold
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("hold_id = ?", holdID).
		First(&hold).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if hold.Status != types.HoldStatusActive {
		tx.Rollback()
		return nil, &HoldUnavailableError{Status: hold.Status}
	}

	if !hold.ExpiresAt.After(time.Now()) {
		// The sweeper hasn't caught this hold yet, but its window is over
		tx.Rollback()
		return nil, ErrHoldExpired
	}

	var product types.Product
	if err := tx.Where("product_id = ?", hold.ProductID).First(&product).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to fetch product for hold %s: %w", holdID, err)
	}

	if err := tx.Model(&types.Hold{}).
		Where("hold_id = ?", holdID).
		Update("status", types.HoldStatusUsed).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	order := &types.Order{
		OrderID:    "ORD_" + uuid.New().String(),
		HoldID:     hold.HoldID,
		ProductID:  hold.ProductID,
		Quantity:   hold.Quantity,
		TotalPrice: product.Price * float64(hold.Quantity),
		Status:     types.OrderStatusPending,
	}

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder retrieves an order by its ID
func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
