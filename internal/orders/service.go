package orders

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/pkg/response"
	"github.com/surgecart/flashsale-api/pkg/txretry"
)

// ErrHoldExpired is returned when a hold is still marked active but
// its reservation window has already elapsed.
var ErrHoldExpired = errors.New("this hold has expired")

// HoldUnavailableError is returned when a hold is not in the active
// state; Status distinguishes used from expired for the message, both
// map to the same error kind.
type HoldUnavailableError struct {
	Status string
}

func (e *HoldUnavailableError) Error() string {
	if e.Status == types.HoldStatusExpired {
		return "this hold has already expired"
	}
	return "this hold has already been used"
}

// Service converts holds into orders
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// ConvertHold consumes the hold exactly once and returns the created
// pending order. Transient store contention is retried at the
// operation boundary.
func (s *Service) ConvertHold(holdID string) (*types.Order, error) {
	logger := log.With().
		Str("component", "orders").
		Str("hold_id", holdID).
		Logger()

	var order *types.Order
	_, err := txretry.Do(logger, func() error {
		var txErr error
		order, txErr = s.db.ConvertHold(holdID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Float64("total_price", order.TotalPrice).
		Msg("order created")

	return order, nil
}

// GetOrder retrieves an order by its ID
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// ConvertHoldRequest is the payload for converting a hold to an order
type ConvertHoldRequest struct {
	HoldID string `json:"hold_id" binding:"required"`
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to convert a hold into an order
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConvertHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.ConvertHold(req.HoldID)
		if err != nil {
			var unavailable *HoldUnavailableError
			switch {
			case errors.As(err, &unavailable):
				response.UnprocessableEntity(c, response.ErrCodeHoldUnavailable, unavailable.Error())
			case errors.Is(err, ErrHoldExpired):
				response.UnprocessableEntity(c, response.ErrCodeHoldExpired, ErrHoldExpired.Error())
			case errors.Is(err, gorm.ErrRecordNotFound):
				response.UnprocessableEntity(c, response.ErrCodeValidationFailed, "Hold not found")
			default:
				log.Error().Err(err).Str("hold_id", req.HoldID).Msg("hold conversion failed")
				response.InternalError(c, "Failed to create order")
			}
			return
		}

		response.Success(c, types.OrderResponse{
			OrderID:    order.OrderID,
			HoldID:     order.HoldID,
			ProductID:  order.ProductID,
			Quantity:   order.Quantity,
			TotalPrice: order.TotalPrice,
			Status:     order.Status,
		})
	}
}

// GetOrderHandler handles GET requests to retrieve an order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.NotFound(c, "Order not found")
				return
			}
			response.InternalError(c, fmt.Sprintf("Failed to fetch order: %s", orderID))
			return
		}

		response.OK(c, order)
	}
}
