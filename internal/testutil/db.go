package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/database"
	"github.com/surgecart/flashsale-api/internal/types"
)

// NewDB opens a migrated sqlite database in a per-test temp dir.
// Immediate transactions plus a busy timeout keep concurrent writers
// queueing instead of failing outright, which matters for the
// contention tests.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(sqlite.Open("file:" + path + "?_busy_timeout=5000&_txlock=immediate"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

// CreateProduct inserts a product with the given stock and returns it
func CreateProduct(t *testing.T, db *gorm.DB, productID string, price float64, stock int) *types.Product {
	t.Helper()

	product := &types.Product{
		ProductID: productID,
		Name:      "Test Product",
		Price:     price,
		Stock:     stock,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("failed to create product: %v", err)
	}
	return product
}

// GetStock reads the current stock counter straight from the store
func GetStock(t *testing.T, db *gorm.DB, productID string) int {
	t.Helper()

	var product types.Product
	if err := db.Where("product_id = ?", productID).First(&product).Error; err != nil {
		t.Fatalf("failed to read product: %v", err)
	}
	return product.Stock
}
