package inventory

import (
	"context"
	"testing"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/testutil"
)

func TestGetProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("miss reads the store and populates the cache", func(t *testing.T) {
		db := testutil.NewDB(t)
		c := cache.NewMemoryCache()
		testutil.CreateProduct(t, db, "PRD_1", 19.99, 100)
		svc := NewService(db, c)

		product, cached, err := svc.GetProduct(ctx, "PRD_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cached {
			t.Fatalf("expected a cache miss on first read")
		}
		if product.ID != "PRD_1" || product.Price != 19.99 || product.AvailableStock != 100 {
			t.Fatalf("unexpected product view: %+v", product)
		}

		if _, ok, _ := c.Get(ctx, cache.ProductKey("PRD_1")); !ok {
			t.Fatalf("expected cache to be populated after miss")
		}
	})

	t.Run("hit serves the cached view without the store", func(t *testing.T) {
		db := testutil.NewDB(t)
		c := cache.NewMemoryCache()
		testutil.CreateProduct(t, db, "PRD_1", 19.99, 100)
		svc := NewService(db, c)

		if _, _, err := svc.GetProduct(ctx, "PRD_1"); err != nil {
			t.Fatalf("warm-up read failed: %v", err)
		}

		// Change the row underneath; the cached view must win until the
		// entry is invalidated or expires
		if err := db.Exec("UPDATE products SET stock = 5 WHERE product_id = ?", "PRD_1").Error; err != nil {
			t.Fatalf("failed to update stock: %v", err)
		}

		product, cached, err := svc.GetProduct(ctx, "PRD_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !cached {
			t.Fatalf("expected a cache hit on second read")
		}
		if product.AvailableStock != 100 {
			t.Fatalf("expected cached stock 100, got %d", product.AvailableStock)
		}
	})

	t.Run("invalidated entry is refreshed from the store", func(t *testing.T) {
		db := testutil.NewDB(t)
		c := cache.NewMemoryCache()
		testutil.CreateProduct(t, db, "PRD_1", 19.99, 100)
		svc := NewService(db, c)

		if _, _, err := svc.GetProduct(ctx, "PRD_1"); err != nil {
			t.Fatalf("warm-up read failed: %v", err)
		}
		if err := db.Exec("UPDATE products SET stock = 5 WHERE product_id = ?", "PRD_1").Error; err != nil {
			t.Fatalf("failed to update stock: %v", err)
		}
		if err := c.Delete(ctx, cache.ProductKey("PRD_1")); err != nil {
			t.Fatalf("failed to invalidate: %v", err)
		}

		product, cached, err := svc.GetProduct(ctx, "PRD_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cached {
			t.Fatalf("expected a miss after invalidation")
		}
		if product.AvailableStock != 5 {
			t.Fatalf("expected fresh stock 5, got %d", product.AvailableStock)
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		db := testutil.NewDB(t)
		svc := NewService(db, cache.NewMemoryCache())

		product, _, err := svc.GetProduct(ctx, "PRD_missing")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if product != nil {
			t.Fatalf("expected nil product, got %+v", product)
		}
	})

	t.Run("corrupt cache entry falls back to the store", func(t *testing.T) {
		db := testutil.NewDB(t)
		c := cache.NewMemoryCache()
		testutil.CreateProduct(t, db, "PRD_1", 19.99, 100)
		svc := NewService(db, c)

		if err := c.Set(ctx, cache.ProductKey("PRD_1"), "{not json", cache.ProductTTL); err != nil {
			t.Fatalf("failed to seed corrupt entry: %v", err)
		}

		product, cached, err := svc.GetProduct(ctx, "PRD_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cached {
			t.Fatalf("corrupt entry must not count as a hit")
		}
		if product.AvailableStock != 100 {
			t.Fatalf("expected stock from the store, got %d", product.AvailableStock)
		}
	})
}
