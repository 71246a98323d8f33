package sweeper

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/inventory"
	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/pkg/response"
)

// Service reclaims stock from holds whose reservation window elapsed
// without a conversion.
type Service struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewService(gormDB *gorm.DB, c cache.Cache) *Service {
	return &Service{
		db:    gormDB,
		cache: c,
	}
}

// SweepExpired releases every active hold whose expiry has passed.
// Each hold is processed in its own transaction so one failure never
// blocks the rest; a hold that a concurrent conversion consumed in the
// meantime is skipped silently.
func (s *Service) SweepExpired(ctx context.Context) (*types.SweepResult, error) {
	logger := log.With().Str("component", "sweeper").Logger()
	start := time.Now()

	var expired []types.Hold
	err := s.db.
		Where("status = ? AND expires_at < ?", types.HoldStatusActive, time.Now()).
		Find(&expired).Error
	if err != nil {
		return nil, err
	}

	result := &types.SweepResult{}
	for _, hold := range expired {
		released, err := s.releaseHold(ctx, hold.HoldID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("hold_id", hold.HoldID).
				Msg("failed to release expired hold")
			continue
		}
		if released == 0 {
			// Consumed by a conversion between the scan and the lock
			continue
		}

		result.ReleasedCount++
		result.QuantityReturned += released

		logger.Info().
			Str("hold_id", hold.HoldID).
			Str("product_id", hold.ProductID).
			Int("quantity_released", released).
			Msg("hold expired and released")
	}

	result.DurationMs = float64(time.Since(start).Microseconds()) / 1000

	logger.Info().
		Int("released_count", result.ReleasedCount).
		Int("total_quantity_released", result.QuantityReturned).
		Float64("duration_ms", result.DurationMs).
		Msg("expired holds release completed")

	return result, nil
}

// releaseHold expires one hold and returns the quantity it gave back,
// or 0 when the hold was no longer active under the lock.
func (s *Service) releaseHold(ctx context.Context, holdID string) (int, error) {
	tx := s.db.Begin()
	if err := tx.Error; err != nil {
		return 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var hold types.Hold
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("hold_id = ?", holdID).
		First(&hold).Error
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	// Re-verify under the lock: the conversion path may have won
	if hold.Status != types.HoldStatusActive {
		tx.Rollback()
		return 0, nil
	}

	if err := tx.Model(&types.Hold{}).
		Where("hold_id = ?", holdID).
		Update("status", types.HoldStatusExpired).Error; err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := inventory.AdjustStock(tx, hold.ProductID, hold.Quantity); err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := s.cache.Delete(ctx, cache.ProductKey(hold.ProductID)); err != nil {
		log.Warn().Err(err).Str("product_id", hold.ProductID).Msg("failed to invalidate product cache")
	}

	if err := tx.Commit().Error; err != nil {
		return 0, err
	}

	return hold.Quantity, nil
}

// GinHandlers contains HTTP handlers for sweep endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SweepHandler handles POST requests from an external scheduler to
// run one expiry sweep
func (h *GinHandlers) SweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.SweepExpired(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("sweep failed")
			response.InternalError(c, "Sweep failed")
			return
		}

		response.Success(c, result)
	}
}
