package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		c := NewMemoryCache()
		if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		value, ok, err := c.Get(ctx, "k")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !ok || value != "v" {
			t.Fatalf("expected hit with %q, got ok=%v value=%q", "v", ok, value)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		c := NewMemoryCache()
		if _, ok, _ := c.Get(ctx, "absent"); ok {
			t.Fatalf("expected miss for absent key")
		}
	})

	t.Run("entries expire", func(t *testing.T) {
		c := NewMemoryCache()
		if err := c.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Fatalf("expected entry to expire")
		}
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		c := NewMemoryCache()
		if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Fatalf("expected entry gone after delete")
		}
	})

	t.Run("delete is a no-op for absent keys", func(t *testing.T) {
		c := NewMemoryCache()
		if err := c.Delete(ctx, "absent"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("set overwrites and resets the ttl", func(t *testing.T) {
		c := NewMemoryCache()
		if err := c.Set(ctx, "k", "old", 10*time.Millisecond); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if err := c.Set(ctx, "k", "new", time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
		value, ok, _ := c.Get(ctx, "k")
		if !ok || value != "new" {
			t.Fatalf("expected refreshed entry, got ok=%v value=%q", ok, value)
		}
	})
}
