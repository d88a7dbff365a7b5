package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = false // Flag to control metric collection

	// Labels for webhook gateway metrics
	webhookRequestLabels  = []string{"method", "outcome"}
	handshakeLabels       = []string{"outcome"}
	ingestOutcomeLabels   = []string{"store_id", "outcome"}
	normalizedKindLabels  = []string{"kind"}
	statusCallbackLabels  = []string{"status"}
	deadLetterLabels      = []string{"store_id"}
	ingestPoolQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversation_ingest_pool_queue_length",
		Help: "Approximate number of webhook batches waiting in the ingest worker pool queue.",
	})

	// WebhookRequestsTotal counts webhook deliveries by HTTP method and outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_ingest_webhook_requests_total",
			Help: "Total number of webhook requests received, labeled by method and outcome.",
		},
		webhookRequestLabels,
	)

	// HandshakeAttemptsTotal counts subscription verification attempts.
	HandshakeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_ingest_handshake_attempts_total",
			Help: "Total number of webhook subscription verification attempts.",
		},
		handshakeLabels,
	)

	// MessagesIngestedTotal counts per-message ingest outcomes.
	MessagesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_ingest_messages_total",
			Help: "Total number of inbound messages ingested, labeled by outcome.",
		},
		ingestOutcomeLabels,
	)

	// MessagesNormalizedTotal counts normalized messages by kind.
	MessagesNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_ingest_messages_normalized_total",
			Help: "Total number of provider messages normalized, labeled by kind.",
		},
		normalizedKindLabels,
	)

	// StatusCallbacksTotal counts observed delivery status receipts.
	StatusCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_ingest_status_callbacks_total",
			Help: "Total number of provider status callbacks observed (log-only).",
		},
		statusCallbackLabels,
	)

	// DeadLettersPublishedTotal counts failed ingests handed to the dead-letter stream.
	DeadLettersPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_ingest_dead_letters_published_total",
			Help: "Total number of failed ingest events published to the dead-letter stream.",
		},
		deadLetterLabels,
	)

	// BatchProcessingDurationSeconds tracks end-to-end batch processing time.
	BatchProcessingDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conversation_ingest_batch_processing_duration_seconds",
			Help:    "Histogram of webhook batch processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "store_id", "status"}

	// DatabaseOperationDurationSeconds tracks repository operation durations.
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_ingest_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// Load generator metrics, exported by cmd/tester only.
var (
	loadgenLabels = []string{"store_id"}

	// LoadgenRequestsAttemptedTotal counts webhook deliveries the generator tried to send.
	LoadgenRequestsAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_webhook_requests_attempted_total",
			Help: "Total number of webhook deliveries the load generator attempted.",
		},
		loadgenLabels,
	)

	// LoadgenRequestsSentTotal counts deliveries acknowledged with 200.
	LoadgenRequestsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_webhook_requests_sent_total",
			Help: "Total number of webhook deliveries acknowledged by the gateway.",
		},
		loadgenLabels,
	)

	// LoadgenRequestErrorsTotal counts deliveries that failed or got a non-200.
	LoadgenRequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_webhook_request_errors_total",
			Help: "Total number of webhook deliveries that errored or were rejected.",
		},
		loadgenLabels,
	)
)

// IncLoadgenRequestsAttempted increments the loadgen attempt counter.
func IncLoadgenRequestsAttempted(storeID string) {
	if !metricsEnabled {
		return
	}
	LoadgenRequestsAttemptedTotal.WithLabelValues(sanitizeStore(storeID)).Inc()
}

// IncLoadgenRequestsSent increments the loadgen success counter.
func IncLoadgenRequestsSent(storeID string) {
	if !metricsEnabled {
		return
	}
	LoadgenRequestsSentTotal.WithLabelValues(sanitizeStore(storeID)).Inc()
}

// IncLoadgenRequestErrors increments the loadgen error counter.
func IncLoadgenRequestErrors(storeID string) {
	if !metricsEnabled {
		return
	}
	LoadgenRequestErrorsTotal.WithLabelValues(sanitizeStore(storeID)).Inc()
}

// InitMetrics enables metric collection. Metrics are auto-registered via
// promauto; this only flips the collection flag so helpers become no-ops when
// the metrics endpoint is disabled.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncWebhookRequest increments the webhook request counter.
func IncWebhookRequest(method, outcome string) {
	if !metricsEnabled {
		return
	}
	WebhookRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// IncHandshakeAttempt increments the handshake counter.
func IncHandshakeAttempt(outcome string) {
	if !metricsEnabled {
		return
	}
	HandshakeAttemptsTotal.WithLabelValues(outcome).Inc()
}

// IncMessageIngested increments the per-message ingest outcome counter.
func IncMessageIngested(storeID, outcome string) {
	if !metricsEnabled {
		return
	}
	MessagesIngestedTotal.WithLabelValues(sanitizeStore(storeID), outcome).Inc()
}

// IncMessageNormalized increments the normalized message counter.
func IncMessageNormalized(kind string) {
	if !metricsEnabled {
		return
	}
	MessagesNormalizedTotal.WithLabelValues(kind).Inc()
}

// IncStatusCallback increments the status callback counter.
func IncStatusCallback(status string) {
	if !metricsEnabled {
		return
	}
	StatusCallbacksTotal.WithLabelValues(status).Inc()
}

// IncDeadLetterPublished increments the dead-letter publish counter.
func IncDeadLetterPublished(storeID string) {
	if !metricsEnabled {
		return
	}
	DeadLettersPublishedTotal.WithLabelValues(sanitizeStore(storeID)).Inc()
}

// SetIngestQueueLength records the approximate ingest pool queue length.
func SetIngestQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	ingestPoolQueueLength.Set(float64(length))
}

// ObserveBatchProcessingDuration records the duration of one webhook batch.
func ObserveBatchProcessingDuration(duration time.Duration) {
	if !metricsEnabled {
		return
	}
	BatchProcessingDurationSeconds.Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, storeID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeStore(storeID), status).Observe(duration.Seconds())
}

// sanitizeStore ensures the store label is valid or returns a default value.
func sanitizeStore(storeID string) string {
	if storeID == "" {
		return "unknown"
	}
	return storeID
}
