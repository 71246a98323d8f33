package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/database"
	"github.com/surgecart/flashsale-api/internal/holds"
	"github.com/surgecart/flashsale-api/internal/inventory"
	"github.com/surgecart/flashsale-api/internal/orders"
	"github.com/surgecart/flashsale-api/internal/sweeper"
	"github.com/surgecart/flashsale-api/internal/webhooks"
	"github.com/surgecart/flashsale-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the flash-sale API server with graceful
// shutdown support. It sets up the store, the read cache, all services
// and API routes, and optionally the in-process sweep loop.
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	if err := database.SeedProducts(db); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed products")
	}

	// Initialize the product read cache: Redis when configured,
	// process-local otherwise
	var productCache cache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisCache, err := cache.NewRedisCache(context.Background(), addr)
		if err != nil {
			zlog.Fatal().Err(err).Str("addr", addr).Msg("Failed to connect to Redis")
		}
		defer redisCache.Close()
		productCache = redisCache
		zlog.Info().Str("addr", addr).Msg("using Redis product cache")
	} else {
		productCache = cache.NewMemoryCache()
		zlog.Info().Msg("using in-memory product cache")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	inventoryService := inventory.NewService(db, productCache)
	inventoryHandlers := inventory.NewGinHandlers(inventoryService)

	holdService := holds.NewService(db, productCache)
	holdHandlers := holds.NewGinHandlers(holdService)

	orderService := orders.NewService(db)
	orderHandlers := orders.NewGinHandlers(orderService)

	webhookService := webhooks.NewService(db, productCache)
	webhookHandlers := webhooks.NewGinHandlers(webhookService)

	sweepService := sweeper.NewService(db, productCache)
	sweepHandlers := sweeper.NewGinHandlers(sweepService)

	// Run the sweep loop in-process when no external scheduler is used
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	if interval, err := time.ParseDuration(os.Getenv("SWEEP_INTERVAL")); err == nil && interval > 0 {
		sweepProcessor := sweeper.NewProcessor(sweepService, interval)
		go sweepProcessor.Start(processorCtx)
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, inventoryHandlers, holdHandlers, orderHandlers, webhookHandlers, sweepHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// Public routes cover the buyer flow; the webhook route is called by
// the payment provider; internal routes are expected to be reachable
// only from the internal network (external scheduler, operators).
func setupRoutes(
	router *gin.Engine,
	inventoryHandlers *inventory.GinHandlers,
	holdHandlers *holds.GinHandlers,
	orderHandlers *orders.GinHandlers,
	webhookHandlers *webhooks.GinHandlers,
	sweepHandlers *sweeper.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Buyer flow
		v1.GET("/products/:product_id", inventoryHandlers.GetProductHandler())
		v1.POST("/holds", holdHandlers.CreateHoldHandler())
		v1.POST("/orders", orderHandlers.CreateOrderHandler())
		v1.GET("/orders/:order_id", orderHandlers.GetOrderHandler())

		// Payment provider callbacks
		v1.POST("/webhooks/payment", webhookHandlers.PaymentWebhookHandler())

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		{
			internal.POST("/sweep", sweepHandlers.SweepHandler())
		}
	}
}
