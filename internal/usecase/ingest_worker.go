package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/ggovsaas/waorders/internal/config"
	"github.com/ggovsaas/waorders/internal/deadletter"
	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/internal/tenant"
	"github.com/ggovsaas/waorders/pkg/logger"
)

// IngestBatchTask carries one acknowledged webhook delivery into the worker
// pool. Events keep the provider's in-batch order and are processed
// sequentially by a single worker; only separate deliveries run concurrently.
type IngestBatchTask struct {
	Ctx       context.Context // Context derived for the task, NOT the original request context
	StoreID   string
	RequestID string
	Events    []model.InboundMessageEvent
	Statuses  []model.StatusCallback
}

// BatchProcessor is the gateway's handle on asynchronous batch processing.
type BatchProcessor interface {
	SubmitBatch(task IngestBatchTask) error
	Stop()
}

// IngestWorker manages the worker pool that drains acknowledged webhook
// batches into the conversation service.
type IngestWorker struct {
	pool       *ants.PoolWithFunc
	service    *ConversationService
	deadLetter deadletter.Publisher
	cfg        config.IngestWorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure IngestWorker implements BatchProcessor
var _ BatchProcessor = (*IngestWorker)(nil)

// NewIngestWorker creates and initializes a new ingest worker pool.
func NewIngestWorker(
	cfg config.IngestWorkerPoolConfig,
	service *ConversationService,
	deadLetter deadletter.Publisher,
	baseLogger *zap.Logger,
) (*IngestWorker, error) {
	worker := &IngestWorker{
		service:    service,
		deadLetter: deadLetter,
		cfg:        cfg,
		baseLogger: baseLogger.Named("ingest_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(IngestBatchTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.ProcessBatch(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in ingest worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Ingest worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitBatch hands one acknowledged delivery to the pool. The caller has
// already returned 200 to the provider; a submit failure is handled here by
// dead-lettering the batch so nothing is silently dropped.
func (w *IngestWorker) SubmitBatch(task IngestBatchTask) error {
	observer.SetIngestQueueLength(w.pool.Waiting())

	err := w.pool.Invoke(task)
	if err != nil {
		w.baseLogger.Warn("Failed to submit batch to ingest pool",
			zap.String("store_id", task.StoreID),
			zap.String("request_id", task.RequestID),
			zap.Int("events", len(task.Events)),
			zap.Error(err),
		)
		w.deadLetterBatch(task, err)
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("ingest pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke ingest task: %w", err)
	}
	return nil
}

// ProcessBatch runs one delivery end to end: sequential per-event ingestion,
// status callback observation, dead-lettering of failures, and a summary log.
func (w *IngestWorker) ProcessBatch(task IngestBatchTask) model.BatchSummary {
	taskCtx := tenant.WithStoreID(task.Ctx, task.StoreID)
	taskCtx = tenant.WithRequestID(taskCtx, task.RequestID)
	log := logger.FromContext(taskCtx).With(zap.String("store_id", task.StoreID))

	start := time.Now()
	var summary model.BatchSummary

	for _, event := range task.Events {
		result, err := w.service.IngestInbound(taskCtx, event)
		if err != nil {
			// A failed message never blocks the rest of the batch.
			log.Error("Failed to ingest inbound message",
				zap.String("external_message_id", event.ExternalMessageID),
				zap.Error(err),
			)
			if dlErr := w.deadLetter.PublishFailedIngest(taskCtx, event, err); dlErr != nil {
				log.Error("Failed to dead-letter inbound message",
					zap.String("external_message_id", event.ExternalMessageID),
					zap.Error(dlErr),
				)
			}
			summary.Observe(model.OutcomeFailed)
			continue
		}
		summary.Observe(result.Outcome)
	}

	for _, status := range task.Statuses {
		observer.IncStatusCallback(status.Status)
		log.Debug("Observed status callback",
			zap.String("external_message_id", status.ExternalMessageID),
			zap.String("status", status.Status),
			zap.String("recipient_id", status.RecipientID),
		)
	}

	duration := time.Since(start)
	observer.ObserveBatchProcessingDuration(duration)
	log.Info("Processed webhook batch",
		zap.Int("ingested", summary.Ingested),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
		zap.Int("statuses", len(task.Statuses)),
		zap.Duration("duration", duration),
	)
	return summary
}

func (w *IngestWorker) deadLetterBatch(task IngestBatchTask, cause error) {
	ctx := tenant.WithStoreID(task.Ctx, task.StoreID)
	for _, event := range task.Events {
		if err := w.deadLetter.PublishFailedIngest(ctx, event, cause); err != nil {
			w.baseLogger.Error("Failed to dead-letter batch event",
				zap.String("external_message_id", event.ExternalMessageID),
				zap.Error(err),
			)
		}
	}
}

// Stop gracefully shuts down the worker pool.
func (w *IngestWorker) Stop() {
	if w.pool != nil {
		w.baseLogger.Info("Releasing ingest worker pool")
		start := time.Now()
		w.pool.Release()
		w.baseLogger.Info("Ingest worker pool released", zap.Duration("duration", time.Since(start)))
	}
}
