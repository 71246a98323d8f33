package orders

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/testutil"
	"github.com/surgecart/flashsale-api/internal/types"
)

func createHold(t *testing.T, db *gorm.DB, holdID, productID string, quantity int, status string, expiresAt time.Time) {
	t.Helper()
	hold := &types.Hold{
		HoldID:    holdID,
		ProductID: productID,
		Quantity:  quantity,
		Status:    status,
		ExpiresAt: expiresAt,
	}
	if err := db.Create(hold).Error; err != nil {
		t.Fatalf("failed to create hold: %v", err)
	}
}

func TestConvertHold(t *testing.T) {
	t.Run("converts active hold into pending order", func(t *testing.T) {
		db := testutil.NewDB(t)
		testutil.CreateProduct(t, db, "PRD_1", 25.50, 70)
		createHold(t, db, "HLD_1", "PRD_1", 30, types.HoldStatusActive, time.Now().Add(time.Minute))
		svc := NewService(db)

		order, err := svc.ConvertHold("HLD_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if order.OrderID == "" {
			t.Fatalf("expected order ID to be set")
		}
		if order.Status != types.OrderStatusPending {
			t.Fatalf("expected status %s, got %s", types.OrderStatusPending, order.Status)
		}
		if order.Quantity != 30 {
			t.Fatalf("expected quantity 30, got %d", order.Quantity)
		}
		if order.TotalPrice != 25.50*30 {
			t.Fatalf("expected total price %.2f, got %.2f", 25.50*30, order.TotalPrice)
		}

		// Conversion transfers the reservation; the ledger is untouched
		if stock := testutil.GetStock(t, db, "PRD_1"); stock != 70 {
			t.Fatalf("expected stock unchanged at 70, got %d", stock)
		}

		var hold types.Hold
		if err := db.Where("hold_id = ?", "HLD_1").First(&hold).Error; err != nil {
			t.Fatalf("failed to read hold: %v", err)
		}
		if hold.Status != types.HoldStatusUsed {
			t.Fatalf("expected hold status %s, got %s", types.HoldStatusUsed, hold.Status)
		}
	})

	t.Run("rejects used hold", func(t *testing.T) {
		db := testutil.NewDB(t)
		testutil.CreateProduct(t, db, "PRD_1", 10, 100)
		createHold(t, db, "HLD_1", "PRD_1", 5, types.HoldStatusUsed, time.Now().Add(time.Minute))
		svc := NewService(db)

		_, err := svc.ConvertHold("HLD_1")
		var unavailable *HoldUnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("expected HoldUnavailableError, got %v", err)
		}
		if unavailable.Status != types.HoldStatusUsed {
			t.Fatalf("expected status %s in error, got %s", types.HoldStatusUsed, unavailable.Status)
		}
	})

	t.Run("rejects expired hold", func(t *testing.T) {
		db := testutil.NewDB(t)
		testutil.CreateProduct(t, db, "PRD_1", 10, 100)
		createHold(t, db, "HLD_1", "PRD_1", 5, types.HoldStatusExpired, time.Now().Add(-time.Minute))
		svc := NewService(db)

		_, err := svc.ConvertHold("HLD_1")
		var unavailable *HoldUnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("expected HoldUnavailableError, got %v", err)
		}
	})

	t.Run("rejects active hold past its window", func(t *testing.T) {
		db := testutil.NewDB(t)
		testutil.CreateProduct(t, db, "PRD_1", 10, 100)
		// The sweeper hasn't run yet, the hold is still marked active
		createHold(t, db, "HLD_1", "PRD_1", 5, types.HoldStatusActive, time.Now().Add(-time.Second))
		svc := NewService(db)

		_, err := svc.ConvertHold("HLD_1")
		if !errors.Is(err, ErrHoldExpired) {
			t.Fatalf("expected ErrHoldExpired, got %v", err)
		}

		// The rejection must not consume the hold
		var hold types.Hold
		if err := db.Where("hold_id = ?", "HLD_1").First(&hold).Error; err != nil {
			t.Fatalf("failed to read hold: %v", err)
		}
		if hold.Status != types.HoldStatusActive {
			t.Fatalf("expected hold left active for the sweeper, got %s", hold.Status)
		}
	})

	t.Run("unknown hold", func(t *testing.T) {
		db := testutil.NewDB(t)
		svc := NewService(db)

		_, err := svc.ConvertHold("HLD_missing")
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatalf("expected record not found, got %v", err)
		}
	})
}

// TestConvertHold_ExactlyOnce races several conversions of the same
// hold; the row lock plus status recheck must let exactly one win.
func TestConvertHold_ExactlyOnce(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateProduct(t, db, "PRD_1", 10, 100)
	createHold(t, db, "HLD_1", "PRD_1", 5, types.HoldStatusActive, time.Now().Add(time.Minute))
	svc := NewService(db)

	const attempts = 5
	var (
		mu        sync.Mutex
		successes int
	)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ConvertHold("HLD_1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful conversion, got %d", successes)
	}

	var count int64
	if err := db.Model(&types.Order{}).Where("hold_id = ?", "HLD_1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one order for the hold, got %d", count)
	}
}
