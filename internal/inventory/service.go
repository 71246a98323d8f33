package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/pkg/response"
)

// Service serves the product read path. Reads go through the cache
// with a bounded TTL; any component that mutates stock invalidates the
// product's entry, so a cached value is never staler than the TTL and
// usually much fresher.
type Service struct {
	db    *Database
	cache cache.Cache
}

func NewService(gormDB *gorm.DB, c cache.Cache) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		cache: c,
	}
}

// GetProduct returns the read-path view of a product, served from
// cache when possible. The second return value reports a cache hit.
func (s *Service) GetProduct(ctx context.Context, productID string) (*types.ProductResponse, bool, error) {
	key := cache.ProductKey(productID)

	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var cached types.ProductResponse
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, true, nil
		}
		// Unreadable entry: drop it and fall through to the store
		_ = s.cache.Delete(ctx, key)
	}

	product, err := s.db.GetProduct(productID)
	if err != nil {
		return nil, false, err
	}
	if product == nil {
		return nil, false, nil
	}

	resp := &types.ProductResponse{
		ID:             product.ProductID,
		Name:           product.Name,
		Price:          product.Price,
		AvailableStock: product.Stock,
	}

	if raw, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), cache.ProductTTL); err != nil {
			log.Warn().Err(err).Str("product_id", productID).Msg("failed to populate product cache")
		}
	}

	return resp, false, nil
}

// GinHandlers contains HTTP handlers for product endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetProductHandler handles GET requests for a single product
// URL parameter: product_id
func (h *GinHandlers) GetProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		productID := c.Param("product_id")
		if productID == "" {
			response.BadRequest(c, "Product ID is required")
			return
		}

		start := time.Now()
		product, cached, err := h.service.GetProduct(c.Request.Context(), productID)
		if err != nil {
			log.Error().Err(err).Str("product_id", productID).Msg("failed to fetch product")
			response.InternalError(c, "Failed to fetch product")
			return
		}
		if product == nil {
			response.NotFound(c, "Product not found")
			return
		}

		log.Info().
			Str("product_id", productID).
			Bool("cached", cached).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("product fetched")

		response.OK(c, product)
	}
}
