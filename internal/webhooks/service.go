package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/pkg/response"
	"github.com/surgecart/flashsale-api/pkg/txretry"
)

// Payment outcomes accepted from the provider
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Webhook response statuses
const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
)

// Service reconciles externally delivered payment outcomes with
// orders, deduplicated by idempotency key.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB, c cache.Cache) *Service {
	return &Service{
		db: NewDatabase(gormDB, c),
	}
}

// Reconcile processes one payment notification. Replaying the same
// idempotency key any number of times yields the originally recorded
// outcome with no further stock or order effects.
func (s *Service) Reconcile(ctx context.Context, key, orderID, outcome, payload string) (*types.WebhookResponse, error) {
	logger := log.With().
		Str("component", "webhooks").
		Str("idempotency_key", key).
		Str("order_id", orderID).
		Logger()

	// Fast path: a log row for this key means the work already happened
	existing, err := s.db.GetLogByKey(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Info().Msg("duplicate webhook received")
		return duplicateResponse(existing), nil
	}

	var (
		logRow      *types.WebhookLog
		orderStatus string
	)
	_, err = txretry.Do(logger, func() error {
		var txErr error
		logRow, orderStatus, txErr = s.db.Reconcile(ctx, key, orderID, outcome, payload)
		return txErr
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent delivery with the same key won the insert race
			existing, readErr := s.db.GetLogByKey(key)
			if readErr != nil {
				return nil, readErr
			}
			if existing != nil {
				logger.Info().Msg("duplicate webhook received")
				return duplicateResponse(existing), nil
			}
		}
		return nil, err
	}

	if logRow.Result == types.WebhookResultOrderNotFound {
		logger.Warn().Msg("webhook received for non-existent order")
		return &types.WebhookResponse{Status: types.WebhookResultOrderNotFound}, nil
	}

	if orderStatus == types.OrderStatusCancelled {
		logger.Info().Msg("payment failed, stock restored")
	} else {
		logger.Info().Msg("payment successful")
	}

	return &types.WebhookResponse{
		Status:      StatusProcessed,
		OrderStatus: orderStatus,
	}, nil
}

func duplicateResponse(logRow *types.WebhookLog) *types.WebhookResponse {
	processedAt := logRow.ProcessedAt
	return &types.WebhookResponse{
		Status:      StatusAlreadyProcessed,
		ProcessedAt: &processedAt,
	}
}

// PaymentWebhookRequest carries the fields the reconciler needs; the
// full raw payload is preserved in the log row.
type PaymentWebhookRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
}

// GinHandlers contains HTTP handlers for webhook endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PaymentWebhookHandler handles POST deliveries from the payment provider
func (h *GinHandlers) PaymentWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			response.BadRequest(c, "Failed to read request body")
			return
		}

		var req PaymentWebhookRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			response.BadRequest(c, "Invalid JSON payload")
			return
		}
		if req.IdempotencyKey == "" || req.OrderID == "" {
			response.BadRequest(c, "idempotency_key and order_id are required")
			return
		}
		if req.Status != OutcomeSuccess && req.Status != OutcomeFailure {
			response.BadRequest(c, fmt.Sprintf("status must be %s or %s", OutcomeSuccess, OutcomeFailure))
			return
		}

		result, err := h.service.Reconcile(c.Request.Context(), req.IdempotencyKey, req.OrderID, req.Status, string(raw))
		if err != nil {
			log.Error().
				Err(err).
				Str("idempotency_key", req.IdempotencyKey).
				Msg("webhook processing failed")
			response.InternalError(c, "Processing failed")
			return
		}

		response.OK(c, result)
	}
}
