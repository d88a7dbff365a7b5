package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/internal/webhook"
	"github.com/ggovsaas/waorders/pkg/logger"
)

// DeliveryTask is one webhook POST to generate and send.
type DeliveryTask struct {
	PhoneNumberID string
	MessageCount  int
}

const defaultBatchSize = 5

func main() {
	// --- Flag Parsing ---
	targetURL := flag.String("url", "http://localhost:8080/whatsapp-webhook", "Webhook gateway URL")
	rate := flag.Int("rate", 50, "Target deliveries per second (total)")
	duration := flag.Duration("duration", 1*time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent workers")
	phoneNumberIDsStr := flag.String("phone-number-ids", "loadgen-phone-1", "Comma-separated provider phone number ids to rotate through")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Messages per webhook delivery")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Webhook Load Generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates load for the waorders gateway by POSTing fake provider deliveries.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
		fmt.Printf("Invalid batch size, using default: %d\n", defaultBatchSize)
	}
	if err := validateRate(*rate); err != nil {
		fmt.Printf("Invalid rate: %v\n", err)
		os.Exit(1)
	}

	// --- Initialization ---
	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		logger.Log.Info("Shutting down metrics server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	phoneNumberIDs := strings.Split(*phoneNumberIDsStr, ",")
	if len(phoneNumberIDs) == 0 || phoneNumberIDs[0] == "" {
		logger.Log.Fatal("No phone number ids provided")
	}

	gofakeit.Seed(time.Now().UnixNano())

	logger.Log.Info("Starting webhook load generator",
		zap.String("url", *targetURL),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.String("phone_number_ids", *phoneNumberIDsStr),
		zap.Int("metrics_port", *metricsPort),
	)

	httpClient := &http.Client{Timeout: 10 * time.Second}

	// --- Worker Pool Setup ---
	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		defer wg.Done()
		task, ok := data.(DeliveryTask)
		if !ok {
			logger.Log.Error("Invalid task type in pool", zap.Any("data", data))
			return
		}
		sendDelivery(httpClient, *targetURL, task)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	// --- Rate Limiting and Execution ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var loopWg sync.WaitGroup
	loopWg.Add(1)
	go runLoadLoop(ctx, *rate, *duration, *batchSize, phoneNumberIDs, pool, &wg, &loopWg)

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down...", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
	}

	logger.Log.Info("Waiting for load loop to finish submitting tasks...")
	loopWg.Wait()
	cancel()

	logger.Log.Info("Waiting for in-flight deliveries to complete...")
	wg.Wait()

	logger.Log.Info("Waiting for metrics server to stop...")
	metricsWg.Wait()

	logger.Log.Info("Load generator shutdown complete.")
}

func startMetricsServer(port int) *http.Server {
	logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()
	return server
}

// validateRate rejects non-positive rates before they reach the ticker
// period division in runLoadLoop.
func validateRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("rate must be a positive deliveries-per-second target, got %d", rate)
	}
	return nil
}

// runLoadLoop submits delivery tasks to the pool at the configured rate.
func runLoadLoop(ctx context.Context, rate int, duration time.Duration, batchSize int, phoneNumberIDs []string, pool *ants.PoolWithFunc, wg *sync.WaitGroup, loopWg *sync.WaitGroup) {
	defer loopWg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	durationTimer := time.NewTimer(duration)
	defer durationTimer.Stop()

	deliveryCounter := 0

	logger.Log.Info("Starting load generation loop",
		zap.Int("target_rate_per_sec", rate),
		zap.Duration("duration", duration),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Load loop stopping due to context cancellation")
			return
		case <-durationTimer.C:
			logger.Log.Info("Load loop stopping after specified duration")
			return
		case <-ticker.C:
			phoneNumberID := phoneNumberIDs[deliveryCounter%len(phoneNumberIDs)]
			deliveryCounter++

			observer.IncLoadgenRequestsAttempted(phoneNumberID)
			wg.Add(1)
			if err := pool.Invoke(DeliveryTask{PhoneNumberID: phoneNumberID, MessageCount: batchSize}); err != nil {
				wg.Done()
				logger.Log.Warn("Failed to invoke worker pool", zap.Error(err))
				observer.IncLoadgenRequestErrors(phoneNumberID)
			}
		}
	}
}

// sendDelivery generates one fake provider delivery and POSTs it.
func sendDelivery(client *http.Client, url string, task DeliveryTask) {
	body := webhook.NewFakeDeliveryJSON(task.PhoneNumberID, task.MessageCount)

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Log.Error("Failed to POST delivery", zap.String("url", url), zap.Error(err))
		observer.IncLoadgenRequestErrors(task.PhoneNumberID)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		logger.Log.Warn("Delivery rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		observer.IncLoadgenRequestErrors(task.PhoneNumberID)
		return
	}
	observer.IncLoadgenRequestsSent(task.PhoneNumberID)
}
