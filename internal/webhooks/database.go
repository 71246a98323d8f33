package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

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

// GetLogByKey retrieves the webhook log for an idempotency key, or
// nil when the key has never been accepted.
func (d *Database) GetLogByKey(key string) (*types.WebhookLog, error) {
	var logRow types.WebhookLog
	if err := d.db.Where("idempotency_key = ?", key).First(&logRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &logRow, nil
}

// Reconcile applies one payment outcome in a single transaction. The
// log insert comes first: its unique key is the race-resolution point,
// so a concurrent duplicate delivery fails with gorm.ErrDuplicatedKey
// and the caller short-circuits. The order is looked up once, under
// its row lock; a missing order is recorded in the log and is not a
// failure of the call.
func (d *Database) Reconcile(ctx context.Context, key, orderID, outcome, payload string) (*types.WebhookLog, string, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, "", err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	logRow := &types.WebhookLog{
		IdempotencyKey: key,
		OrderID:        orderID,
		Status:         outcome,
		Payload:        payload,
		ProcessedAt:    time.Now(),
	}

	if err := tx.Create(logRow).Error; err != nil {
		tx.Rollback()
		return nil, "", err
	}

	var order types.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// The log row stands as the dedup record for this key
		logRow.Result = types.WebhookResultOrderNotFound
		if err := tx.Model(logRow).Update("result", logRow.Result).Error; err != nil {
			tx.Rollback()
			return nil, "", err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, "", err
		}
		return logRow, "", nil
	}
	if err != nil {
		tx.Rollback()
		return nil, "", err
	}

	var orderStatus string
	if outcome == OutcomeSuccess {
		orderStatus = types.OrderStatusPaid
	} else {
		orderStatus = types.OrderStatusCancelled
	}

	if err := tx.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Update("status", orderStatus).Error; err != nil {
		tx.Rollback()
		return nil, "", err
	}

	if orderStatus == types.OrderStatusCancelled {
		// Failed payment returns the order's units to the ledger
		if err := inventory.AdjustStock(tx, order.ProductID, order.Quantity); err != nil {
			tx.Rollback()
			return nil, "", err
		}
		if err := d.cache.Delete(ctx, cache.ProductKey(order.ProductID)); err != nil {
			log.Warn().Err(err).Str("product_id", order.ProductID).Msg("failed to invalidate product cache")
		}
	}

	logRow.Result = types.WebhookResultProcessed
	if err := tx.Model(logRow).Update("result", logRow.Result).Error; err != nil {
		tx.Rollback()
		return nil, "", err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, "", err
	}

	return logRow, orderStatus, nil
}
