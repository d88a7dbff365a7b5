package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ggovsaas/waorders/internal/config"
	"github.com/ggovsaas/waorders/internal/deadletter"
	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/internal/storage"
	"github.com/ggovsaas/waorders/internal/usecase"
	"github.com/ggovsaas/waorders/internal/webhook"
	"github.com/ggovsaas/waorders/pkg/logger"
	"github.com/ggovsaas/waorders/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting waorders ingestion service",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Dead-letter publisher: JetStream when NATS is configured, no-op otherwise
	deadLetter := initDeadLetterPublisher(cfg)

	// Create repository adapters for the service
	conversationRepo := storage.NewConversationRepoAdapter(postgresRepo)
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	channelConfigRepo := storage.NewChannelConfigRepoAdapter(postgresRepo)

	service := usecase.NewConversationService(conversationRepo, messageRepo, channelConfigRepo)

	// Create ingest worker pool, injecting the service and dead-letter sink
	ingestWorker, err := usecase.NewIngestWorker(cfg.WorkerPools.Ingest, service, deadLetter, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize ingest worker pool", zap.Error(err))
	}

	server := webhook.NewServer(cfg, service, ingestWorker, postgresRepo.Ping)

	serverErrCh := make(chan error, 1)
	utils.SafeGo(func() {
		serverErrCh <- server.Start()
	}, nil)

	logger.Log.Info("Webhook gateway started",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/whatsapp-webhook", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	// Wait for termination signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Log.Error("HTTP server failed, initiating shutdown", zap.Error(err))
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Stop accepting HTTP traffic first so no new batches arrive
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Drain the ingest worker pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping ingest worker pool")
		start := time.Now()
		ingestWorker.Stop()
		logger.Log.Info("[shutdown] Ingest worker pool stopped", zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping ingest worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close external connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing dead-letter publisher")
		deadLetter.Close()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		start := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("waorders ingestion service shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

func initDeadLetterPublisher(cfg *config.Config) deadletter.Publisher {
	if !cfg.NATS.Enabled {
		logger.Log.Info("NATS disabled, failed ingests will be logged only")
		return deadletter.NoopPublisher{}
	}

	publisher, err := deadletter.NewNatsPublisher(cfg.NATS.URL, cfg.NATS.DeadLetterStream, cfg.NATS.DeadLetterBase)
	if err != nil {
		logger.Log.Fatal("Failed to initialize dead-letter publisher",
			zap.String("url", cfg.NATS.URL),
			zap.Error(err),
		)
	}
	logger.Log.Info("Dead-letter publisher connected",
		zap.String("stream", cfg.NATS.DeadLetterStream),
		zap.String("base_subject", cfg.NATS.DeadLetterBase),
	)
	return publisher
}
