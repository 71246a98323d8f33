package sweeper

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/holds"
	"github.com/surgecart/flashsale-api/internal/orders"
	"github.com/surgecart/flashsale-api/internal/testutil"
	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/internal/webhooks"
)

func expireHold(t *testing.T, db *gorm.DB, holdID string) {
	t.Helper()
	err := db.Model(&types.Hold{}).
		Where("hold_id = ?", holdID).
		Update("expires_at", time.Now().Add(-time.Second)).Error
	if err != nil {
		t.Fatalf("failed to backdate hold: %v", err)
	}
}

// TestStockConservation drives the full buyer flow and checks that
// every unit is accounted for: whatever left the ledger is held by an
// active reservation or committed to a live order, and nothing else.
func TestStockConservation(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	c := cache.NewMemoryCache()
	const initialStock = 100

	testutil.CreateProduct(t, db, "PRD_drop", 49.99, initialStock)

	holdService := holds.NewService(db, c)
	orderService := orders.NewService(db)
	webhookService := webhooks.NewService(db, c)
	sweepService := NewService(db, c)

	// Buyer A: hold, convert, pay
	holdA, err := holdService.CreateHold(ctx, "PRD_drop", 20)
	if err != nil {
		t.Fatalf("buyer A hold: %v", err)
	}
	orderA, err := orderService.ConvertHold(holdA.HoldID)
	if err != nil {
		t.Fatalf("buyer A convert: %v", err)
	}
	if _, err := webhookService.Reconcile(ctx, "pay-a", orderA.OrderID, webhooks.OutcomeSuccess, `{}`); err != nil {
		t.Fatalf("buyer A payment: %v", err)
	}

	// Buyer B: hold, convert, payment fails
	holdB, err := holdService.CreateHold(ctx, "PRD_drop", 30)
	if err != nil {
		t.Fatalf("buyer B hold: %v", err)
	}
	orderB, err := orderService.ConvertHold(holdB.HoldID)
	if err != nil {
		t.Fatalf("buyer B convert: %v", err)
	}
	if _, err := webhookService.Reconcile(ctx, "pay-b", orderB.OrderID, webhooks.OutcomeFailure, `{}`); err != nil {
		t.Fatalf("buyer B payment: %v", err)
	}

	// Buyer C: hold abandoned, reclaimed by the sweep
	holdC, err := holdService.CreateHold(ctx, "PRD_drop", 10)
	if err != nil {
		t.Fatalf("buyer C hold: %v", err)
	}
	expireHold(t, db, holdC.HoldID)
	swept, err := sweepService.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.ReleasedCount != 1 || swept.QuantityReturned != 10 {
		t.Fatalf("expected sweep to reclaim buyer C's 10 units, got %d holds / %d units",
			swept.ReleasedCount, swept.QuantityReturned)
	}

	// Buyer D: hold still inside its window
	if _, err := holdService.CreateHold(ctx, "PRD_drop", 15); err != nil {
		t.Fatalf("buyer D hold: %v", err)
	}

	// Ledger: 100 - 20 (paid) - 30 +30 (failed) - 10 +10 (swept) - 15 (held)
	stock := testutil.GetStock(t, db, "PRD_drop")
	if stock != 65 {
		t.Fatalf("expected stock 65, got %d", stock)
	}

	var activeHeld int64
	row := db.Model(&types.Hold{}).
		Where("status = ?", types.HoldStatusActive).
		Select("COALESCE(SUM(quantity), 0)").Row()
	if err := row.Scan(&activeHeld); err != nil {
		t.Fatalf("failed to sum active holds: %v", err)
	}

	var committed int64
	row = db.Model(&types.Order{}).
		Where("status IN ?", []string{types.OrderStatusPending, types.OrderStatusPaid}).
		Select("COALESCE(SUM(quantity), 0)").Row()
	if err := row.Scan(&committed); err != nil {
		t.Fatalf("failed to sum live orders: %v", err)
	}

	if total := stock + int(activeHeld) + int(committed); total != initialStock {
		t.Fatalf("units not conserved: stock=%d held=%d committed=%d, total %d of %d",
			stock, activeHeld, committed, total, initialStock)
	}
}
