package types

import "time"

// HoldResponse is returned after a successful hold creation
type HoldResponse struct {
	HoldID    string    `json:"hold_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProductResponse is the read-path view of a product
type ProductResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	AvailableStock int     `json:"available_stock"`
}

// OrderResponse is returned after converting a hold to an order
type OrderResponse struct {
	OrderID    string  `json:"order_id"`
	HoldID     string  `json:"hold_id"`
	ProductID  string  `json:"product_id"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
	Status     string  `json:"status"`
}

// WebhookResponse is returned by the payment webhook endpoint.
// OrderStatus is only set when the order was actually transitioned,
// ProcessedAt only on duplicate deliveries.
type WebhookResponse struct {
	Status      string     `json:"status"`
	OrderStatus string     `json:"order_status,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// SweepResult summarizes one expiry sweep run
type SweepResult struct {
	ReleasedCount    int     `json:"released_count"`
	QuantityReturned int     `json:"quantity_returned"`
	DurationMs       float64 `json:"duration_ms"`
}
