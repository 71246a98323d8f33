package cache

import (
	"context"
	"fmt"
	"time"
)

// ProductTTL bounds how stale a cached product read may be when no
// mutation invalidates it first.
const ProductTTL = 60 * time.Second

// Cache is the read-path accelerator in front of product reads. It is
// never authoritative: every successful stock mutation must call
// Delete for the product's key rather than writing a new value.
type Cache interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key so the next read repopulates from the store.
	Delete(ctx context.Context, key string) error
}

// ProductKey is the cache key for a product's read-path entry
func ProductKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}
