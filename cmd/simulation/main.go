package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/surgecart/flashsale-api/internal/cache"
	"github.com/surgecart/flashsale-api/internal/database"
	"github.com/surgecart/flashsale-api/internal/holds"
	"github.com/surgecart/flashsale-api/internal/inventory"
	"github.com/surgecart/flashsale-api/internal/orders"
	"github.com/surgecart/flashsale-api/internal/sweeper"
	"github.com/surgecart/flashsale-api/internal/types"
	"github.com/surgecart/flashsale-api/internal/webhooks"
)

const (
	numBuyers        = 8
	attemptsPerBuyer = 20
	initialStock     = 100
	serverAddress    = "http://localhost:8080"
	productID        = "PRD_sim-drop"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the flash-sale API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
	mu      sync.Mutex
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: map[string]*routeStats{
			"product": {name: "Read Product"},
			"hold":    {name: "Create Hold"},
			"order":   {name: "Convert Hold"},
			"webhook": {name: "Payment Webhook"},
			"sweep":   {name: "Sweep"},
		},
	}
}

func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (sc *simulationClient) post(path string, payload interface{}) (int, *envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	resp, err := sc.client.Post(sc.baseURL+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return resp.StatusCode, &env, nil
}

// createHold attempts to reserve quantity units, returning the hold
// response on success and nil when the sale rejected the reservation
func (sc *simulationClient) createHold(quantity int) (*types.HoldResponse, error) {
	start := time.Now()
	status, env, err := sc.post("/api/v1/holds", map[string]interface{}{
		"product_id": productID,
		"quantity":   quantity,
	})
	sc.record("hold", start, err != nil || status >= 500)
	if err != nil {
		return nil, err
	}

	if status != http.StatusCreated {
		// Sold out or busy: an expected outcome under contention
		return nil, nil
	}

	var hold types.HoldResponse
	if err := json.Unmarshal(env.Data, &hold); err != nil {
		return nil, err
	}
	return &hold, nil
}

// convertHold converts a hold into a pending order
func (sc *simulationClient) convertHold(holdID string) (*types.OrderResponse, error) {
	start := time.Now()
	status, env, err := sc.post("/api/v1/orders", map[string]interface{}{
		"hold_id": holdID,
	})
	sc.record("order", start, err != nil || status >= 500)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("convert hold failed with status %d", status)
	}

	var order types.OrderResponse
	if err := json.Unmarshal(env.Data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// sendWebhook delivers a payment outcome for an order
func (sc *simulationClient) sendWebhook(orderID, outcome string) error {
	start := time.Now()
	status, _, err := sc.post("/api/v1/webhooks/payment", map[string]interface{}{
		"idempotency_key": uuid.New().String(),
		"order_id":        orderID,
		"status":          outcome,
		"provider":        "simpay",
	})
	sc.record("webhook", start, err != nil || status != http.StatusOK)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("webhook failed with status %d", status)
	}
	return nil
}

// triggerSweep runs one expiry sweep via the internal endpoint
func (sc *simulationClient) triggerSweep() error {
	start := time.Now()
	status, _, err := sc.post("/api/v1/internal/sweep", struct{}{})
	sc.record("sweep", start, err != nil || status >= 500)
	if err != nil {
		return err
	}
	return nil
}

// getProduct reads the product through the cached read path
func (sc *simulationClient) getProduct() (*types.ProductResponse, error) {
	start := time.Now()
	resp, err := sc.client.Get(fmt.Sprintf("%s/api/v1/products/%s", sc.baseURL, productID))
	sc.record("product", start, err != nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env struct {
		Success bool                  `json:"success"`
		Data    types.ProductResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &env.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

type buyerOutcome struct {
	heldQty      int
	convertedQty int
	paidQty      int
	cancelledQty int
	abandonedQty int
	soldOut      int
}

// runBuyer simulates one buyer repeatedly racing for stock: reserve,
// then either abandon the hold, or convert and receive a payment
// outcome from the provider.
func runBuyer(buyerID int, simClient *simulationClient, results chan<- buyerOutcome) {
	var out buyerOutcome

	for i := 0; i < attemptsPerBuyer; i++ {
		quantity := rand.Intn(3) + 1

		hold, err := simClient.createHold(quantity)
		if err != nil {
			log.Error().Err(err).Int("buyer_id", buyerID).Msg("Failed to create hold")
			continue
		}
		if hold == nil {
			out.soldOut++
			continue
		}
		out.heldQty += hold.Quantity

		// A third of buyers walk away and leave the hold to expire
		if rand.Intn(3) == 0 {
			out.abandonedQty += hold.Quantity
			continue
		}

		order, err := simClient.convertHold(hold.HoldID)
		if err != nil {
			log.Error().Err(err).Str("hold_id", hold.HoldID).Msg("Failed to convert hold")
			out.abandonedQty += hold.Quantity
			continue
		}
		out.convertedQty += order.Quantity

		// Payments succeed 80% of the time
		outcome := webhooks.OutcomeSuccess
		if rand.Intn(5) == 0 {
			outcome = webhooks.OutcomeFailure
		}
		if err := simClient.sendWebhook(order.OrderID, outcome); err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to deliver webhook")
			continue
		}
		if outcome == webhooks.OutcomeSuccess {
			out.paidQty += order.Quantity
		} else {
			out.cancelledQty += order.Quantity
		}

		// Random sleep between attempts
		time.Sleep(time.Duration(rand.Intn(100)) * time.Millisecond)
	}

	results <- out
}

// main runs the flash-sale simulation
// It starts a local API server and simulates concurrent buyers racing
// for limited stock, then checks stock conservation.
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient := newSimulationClient()

	log.Info().
		Int("buyers", numBuyers).
		Int("initial_stock", initialStock).
		Msg("Starting flash-sale simulation")

	start := time.Now()
	results := make(chan buyerOutcome, numBuyers)
	var wg sync.WaitGroup

	for i := 0; i < numBuyers; i++ {
		wg.Add(1)
		go func(buyerID int) {
			defer wg.Done()
			runBuyer(buyerID, simClient, results)
		}(i)
	}

	wg.Wait()
	close(results)

	var total buyerOutcome
	for out := range results {
		total.heldQty += out.heldQty
		total.convertedQty += out.convertedQty
		total.paidQty += out.paidQty
		total.cancelledQty += out.cancelledQty
		total.abandonedQty += out.abandonedQty
		total.soldOut += out.soldOut
	}

	// Reclaim whatever the abandoned holds still reserve; holds are
	// still inside their window so the sweep should release nothing yet
	if err := simClient.triggerSweep(); err != nil {
		log.Error().Err(err).Msg("Failed to trigger sweep")
	}

	product, err := simClient.getProduct()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read final stock")
	}

	// Every successfully held unit was either committed to an order,
	// returned by a failed payment, or is still reserved by an
	// abandoned hold awaiting expiry.
	committed := total.paidQty + (total.convertedQty - total.paidQty - total.cancelledQty)
	reserved := total.heldQty - total.convertedQty
	expectedStock := initialStock - committed - reserved

	duration := time.Since(start)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("FLASH-SALE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Units reserved:      %d
Units converted:     %d
Units paid:          %d
Units cancelled:     %d
Units abandoned:     %d
Sold-out rejections: %d
Final stock:         %d (expected %d)
Duration:            %v
`, total.heldQty, total.convertedQty, total.paidQty, total.cancelledQty,
		total.abandonedQty, total.soldOut, product.AvailableStock, expectedStock,
		duration.Round(time.Millisecond))

	fmt.Println(strings.Repeat("=", 80))

	if total.heldQty > initialStock {
		log.Error().
			Int("held", total.heldQty).
			Int("initial_stock", initialStock).
			Msg("OVERSELL DETECTED: reserved more units than were in stock")
	} else if product.AvailableStock != expectedStock {
		log.Error().
			Int("final_stock", product.AvailableStock).
			Int("expected", expectedStock).
			Msg("CONSERVATION VIOLATION: stock does not add up")
	} else {
		log.Info().
			Int("held", total.heldQty).
			Int("final_stock", product.AvailableStock).
			Msg("Stock conservation verified")
	}

	simClient.printPerformanceStats()
}

// startServer initializes and starts the flash-sale API server with a
// fresh database and the simulation product seeded at a known stock
func startServer() error {
	if os.Getenv("DB_PATH") == "" {
		os.Setenv("DB_PATH", "simulation.db")
		os.Remove("simulation.db")
	}

	db, err := database.NewDatabase()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	product := types.Product{
		ProductID: productID,
		Name:      "Simulation Drop",
		Price:     149.99,
		Stock:     initialStock,
	}
	if err := db.Create(&product).Error; err != nil {
		return fmt.Errorf("failed to seed simulation product: %w", err)
	}

	productCache := cache.NewMemoryCache()

	// Initialize services
	inventoryService := inventory.NewService(db, productCache)
	holdService := holds.NewService(db, productCache)
	orderService := orders.NewService(db)
	webhookService := webhooks.NewService(db, productCache)
	sweepService := sweeper.NewService(db, productCache)

	// Initialize router
	router := gin.Default()
	inventoryHandlers := inventory.NewGinHandlers(inventoryService)
	holdHandlers := holds.NewGinHandlers(holdService)
	orderHandlers := orders.NewGinHandlers(orderService)
	webhookHandlers := webhooks.NewGinHandlers(webhookService)
	sweepHandlers := sweeper.NewGinHandlers(sweepService)

	// Setup routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/products/:product_id", inventoryHandlers.GetProductHandler())
		v1.POST("/holds", holdHandlers.CreateHoldHandler())
		v1.POST("/orders", orderHandlers.CreateOrderHandler())
		v1.GET("/orders/:order_id", orderHandlers.GetOrderHandler())
		v1.POST("/webhooks/payment", webhookHandlers.PaymentWebhookHandler())

		internal := v1.Group("/internal")
		{
			internal.POST("/sweep", sweepHandlers.SweepHandler())
		}
	}

	// Start the server
	return router.Run(":8080")
}
