package types

import (
	"time"

	"gorm.io/gorm"
)

// Hold statuses. Exactly one terminal transition is allowed per hold:
// active -> expired (sweeper) or active -> used (order conversion).
const (
	HoldStatusActive  = "active"
	HoldStatusExpired = "expired"
	HoldStatusUsed    = "used"
)

// Order statuses driven by payment reconciliation.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// HoldWindow is how long a hold reserves stock before the sweeper
// may reclaim it.
const HoldWindow = 2 * time.Minute

// Product is the stock ledger: Stock is the authoritative count of
// currently available, unreserved units. It is only ever mutated
// inside a transaction holding the product's row lock. Version is
// bumped on every stock mutation as an optimistic-concurrency fallback
// for stores without row locks.
type Product struct {
	gorm.Model `json:"-"`
	ProductID  string    `gorm:"uniqueIndex" json:"product_id"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Stock      int       `json:"stock"`
	Version    int       `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Hold is a time-bounded reservation of stock pending conversion to
// an order. The (status, expires_at) index serves the sweep scan.
type Hold struct {
	gorm.Model `json:"-"`
	HoldID     string    `gorm:"uniqueIndex" json:"hold_id"`
	ProductID  string    `gorm:"index" json:"product_id"`
	Quantity   int       `json:"quantity"`
	Status     string    `gorm:"index:idx_holds_status_expires" json:"status"`
	ExpiresAt  time.Time `gorm:"index:idx_holds_status_expires" json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Order owns the reservation its hold made: quantity and product are
// copied from the hold at creation time and never change afterwards.
// TotalPrice is computed once, at creation.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string    `gorm:"uniqueIndex" json:"order_id"`
	HoldID     string    `gorm:"uniqueIndex" json:"hold_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"total_price"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WebhookLog records one processed payment notification per
// idempotency key. The unique index on the key is the race-resolution
// point for concurrent duplicate deliveries: only one insert wins, and
// the existence of a row is the single source of truth for "already
// processed".
type WebhookLog struct {
	gorm.Model     `json:"-"`
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"` // reported payment outcome: success or failure
	Result         string    `json:"result"` // recorded processing result
	Payload        string    `json:"payload"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Webhook processing results recorded in WebhookLog.Result.
const (
	WebhookResultProcessed     = "processed"
	WebhookResultOrderNotFound = "order_not_found"
)
