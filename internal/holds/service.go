package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/pkg/response"
	"github.com/surgecart/flashsale-api/pkg/txretry"
)

// ErrSystemBusy is returned when the reservation transaction kept
// hitting transient store contention and exhausted its retries.
var ErrSystemBusy = errors.New("system busy, please try again")

// InsufficientStockError is a definitive business-rule rejection; it
// carries the stock that was available at check time and is never
// retried.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock available. Available: %d", e.Available)
}

// Service handles stock reservation: holds that atomically decrement
// the ledger and reserve inventory for a bounded window.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB, c cache.Cache) *Service {
	return &Service{
		db: NewDatabase(gormDB, c),
	}
}

// CreateHold reserves quantity units of the product for the hold
// window. The underlying transaction is retried on transient
// contention; business-rule failures are definitive.
func (s *Service) CreateHold(ctx context.Context, productID string, quantity int) (*types.Hold, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}

	logger := log.With().
		Str("component", "holds").
		Str("product_id", productID).
		Logger()

	var hold *types.Hold
	attempts, err := txretry.Do(logger, func() error {
		var txErr error
		hold, txErr = s.db.CreateHold(ctx, productID, quantity)
		return txErr
	})
	if err != nil {
		if txretry.IsTransient(err) {
			logger.Error().Int("attempts", attempts).Msg("max retries reached for hold creation")
			return nil, ErrSystemBusy
		}
		return nil, err
	}

	logger.Info().
		Str("hold_id", hold.HoldID).
		Int("quantity", quantity).
		Int("attempts", attempts).
		Time("expires_at", hold.ExpiresAt).
		Msg("hold created")

	return hold, nil
}

// GetHold retrieves a hold by its ID
func (s *Service) GetHold(holdID string) (*types.Hold, error) {
	return s.db.GetHold(holdID)
}

// CreateHoldRequest is the payload for creating a hold
type CreateHoldRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// GinHandlers contains HTTP handlers for hold endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateHoldHandler handles POST requests to reserve stock
func (h *GinHandlers) CreateHoldHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		start := time.Now()
		hold, err := h.service.CreateHold(c.Request.Context(), req.ProductID, req.Quantity)
		if err != nil {
			var insufficient *InsufficientStockError
			switch {
			case errors.As(err, &insufficient):
				response.UnprocessableEntity(c, response.ErrCodeInsufficientStock, insufficient.Error())
			case errors.Is(err, ErrSystemBusy):
				response.ServiceUnavailable(c, ErrSystemBusy.Error())
			case errors.Is(err, gorm.ErrRecordNotFound):
				response.UnprocessableEntity(c, response.ErrCodeValidationFailed, "Product not found")
			default:
				log.Error().Err(err).Str("product_id", req.ProductID).Msg("hold creation failed")
				response.InternalError(c, "Failed to create hold")
			}
			return
		}

		log.Info().
			Str("hold_id", hold.HoldID).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("hold request completed")

		response.Success(c, types.HoldResponse{
			HoldID:    hold.HoldID,
			ProductID: hold.ProductID,
			Quantity:  hold.Quantity,
			ExpiresAt: hold.ExpiresAt,
		})
	}
}
