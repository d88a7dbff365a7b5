package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ggovsaas/waorders/internal/apperrors"
	"github.com/ggovsaas/waorders/internal/config"
	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/internal/tenant"
	"github.com/ggovsaas/waorders/internal/usecase"
	"github.com/ggovsaas/waorders/pkg/logger"
	"github.com/ggovsaas/waorders/pkg/utils"
)

const (
	ackBody       = "EVENT_RECEIVED"
	forbiddenBody = "Forbidden"

	storeIDHeader = "X-Store-ID"

	// maxPayloadBytes bounds one webhook delivery body.
	maxPayloadBytes = 1 << 20
)

// Server terminates the provider webhook contract and exposes the
// agent-facing conversation API.
type Server struct {
	cfg        *config.Config
	service    *usecase.ConversationService
	processor  usecase.BatchProcessor
	readyCheck func(ctx context.Context) error
	httpServer *http.Server
}

// NewServer creates the HTTP server. readyCheck gates the readiness probe and
// may be nil.
func NewServer(
	cfg *config.Config,
	service *usecase.ConversationService,
	processor usecase.BatchProcessor,
	readyCheck func(ctx context.Context) error,
) *Server {
	s := &Server{
		cfg:        cfg,
		service:    service,
		processor:  processor,
		readyCheck: readyCheck,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router builds the chi routing tree. Exposed separately so tests can drive
// the handlers through httptest without binding a port.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", storeIDHeader},
	}))

	// Provider-facing webhook contract.
	r.Get("/whatsapp-webhook", s.handleVerify)
	r.Post("/whatsapp-webhook", s.handleEvents)

	// Agent-facing API, tenant-scoped by header.
	r.Route("/api", func(r chi.Router) {
		r.Use(s.storeIDMiddleware)
		r.Get("/conversations", s.handleListConversations)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handleSendOutbound)
			r.Post("/read", s.handleMarkRead)
			r.Patch("/status", s.handleSetStatus)
		})
		r.Route("/channels/{channel}/config", func(r chi.Router) {
			r.Get("/", s.handleGetChannelConfig)
			r.Put("/", s.handleSaveChannelConfig)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	logger.Log.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(tenant.WithRequestID(r.Context(), requestID)))
	})
}

// storeIDMiddleware scopes agent API requests to the tenant named in the
// X-Store-ID header.
func (s *Server) storeIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeID := r.Header.Get(storeIDHeader)
		if storeID == "" {
			utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "missing " + storeIDHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithStoreID(r.Context(), storeID)))
	})
}

// handleVerify answers the provider's subscription handshake. The challenge
// is echoed back verbatim, including the empty string.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	query := r.URL.Query()

	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if !query.Has("hub.mode") || !query.Has("hub.verify_token") {
		observer.IncHandshakeAttempt("bad_request")
		utils.WriteTextResponse(w, http.StatusBadRequest, "Missing hub.mode or hub.verify_token")
		return
	}

	if mode == "subscribe" && token == s.cfg.Whatsapp.VerifyToken {
		log.Info("Webhook subscription verified")
		observer.IncHandshakeAttempt("verified")
		utils.WriteTextResponse(w, http.StatusOK, challenge)
		return
	}

	log.Warn("Webhook subscription rejected", zap.String("mode", mode))
	observer.IncHandshakeAttempt("rejected")
	utils.WriteTextResponse(w, http.StatusForbidden, forbiddenBody)
}

// handleEvents accepts one provider delivery. The contract is ack-first:
// anything structurally parseable is answered 200 "EVENT_RECEIVED" and the
// extracted batch is processed off the request path, so a slow or failing
// store never triggers a provider retry storm. Only a JSON parse failure
// earns a 500, and the external-id dedup makes that wholesale retry safe.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		observer.IncWebhookRequest(http.MethodPost, "read_error")
		utils.WriteTextResponse(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("Failed to parse webhook payload", zap.Error(err), zap.Int("body_bytes", len(body)))
		observer.IncWebhookRequest(http.MethodPost, "parse_error")
		utils.WriteTextResponse(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if payload.Object != expectedObject {
		// Not ours, but structurally fine. Acking suppresses provider retries.
		log.Warn("Ignoring webhook with unexpected object", zap.String("object", payload.Object))
		observer.IncWebhookRequest(http.MethodPost, "ignored")
		utils.WriteTextResponse(w, http.StatusOK, ackBody)
		return
	}

	batches := s.extractBatches(r.Context(), payload)

	observer.IncWebhookRequest(http.MethodPost, "accepted")
	utils.WriteTextResponse(w, http.StatusOK, ackBody)
	// Push the ack onto the wire now. Submission below can block when the
	// ingest pool queue is full, and the provider must never wait on it.
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	for _, batch := range batches {
		if err := s.processor.SubmitBatch(batch); err != nil {
			// Already dead-lettered by the processor; the ack is sent either way.
			log.Error("Failed to submit webhook batch",
				zap.String("store_id", batch.StoreID),
				zap.Error(err),
			)
		}
	}
}

// extractBatches walks entry → changes → value, normalizes every message and
// groups the results per attributed store. A message that fails normalization
// is logged and skipped without disturbing its siblings. Order within a store
// follows payload order.
func (s *Server) extractBatches(ctx context.Context, payload webhookPayload) []usecase.IngestBatchTask {
	log := logger.FromContext(ctx)
	requestID, _ := tenant.FromRequestIDContext(ctx)

	// The task outlives the HTTP request, so it carries a fresh context.
	taskCtx := tenant.WithRequestID(context.Background(), requestID)

	byStore := make(map[string]int)
	var batches []usecase.IngestBatchTask

	batchFor := func(storeID string) *usecase.IngestBatchTask {
		if idx, ok := byStore[storeID]; ok {
			return &batches[idx]
		}
		byStore[storeID] = len(batches)
		batches = append(batches, usecase.IngestBatchTask{
			Ctx:       taskCtx,
			StoreID:   storeID,
			RequestID: requestID,
		})
		return &batches[len(batches)-1]
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != fieldMessages {
				continue
			}

			storeID := s.resolveStore(ctx, change.Value.Metadata)
			if storeID == "" {
				log.Warn("Dropping change with no attributable store",
					zap.String("entry_id", entry.ID),
					zap.Int("messages", len(change.Value.Messages)),
				)
				continue
			}
			batch := batchFor(storeID)

			for _, msg := range change.Value.Messages {
				event, err := normalizeMessage(storeID, msg)
				if err != nil {
					log.Warn("Skipping malformed message in batch",
						zap.String("store_id", storeID),
						zap.String("message_id", msg.ID),
						zap.Error(err),
					)
					continue
				}
				observer.IncMessageNormalized(event.Kind)
				batch.Events = append(batch.Events, event)
			}

			for _, status := range change.Value.Statuses {
				callback := model.StatusCallback{
					ExternalMessageID: status.ID,
					Status:            status.Status,
					RecipientID:       status.RecipientID,
				}
				if ts, err := strconv.ParseInt(status.Timestamp, 10, 64); err == nil {
					callback.Timestamp = ts
				}
				batch.Statuses = append(batch.Statuses, callback)
			}
		}
	}

	return batches
}

// resolveStore attributes a delivery to a tenant via the phone number id the
// provider addressed, falling back to the configured default store.
func (s *Server) resolveStore(ctx context.Context, metadata *webhookMetadata) string {
	if metadata != nil && metadata.PhoneNumberID != "" {
		storeID, err := s.service.ResolveStoreByPhoneNumberID(ctx, metadata.PhoneNumberID)
		if err == nil {
			return storeID
		}
		if !apperrors.IsNotFoundError(err) {
			logger.FromContext(ctx).Error("Store attribution lookup failed",
				zap.String("phone_number_id", metadata.PhoneNumberID),
				zap.Error(err),
			)
		}
	}
	return s.cfg.Store.Default
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.service.ListConversations(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, conversations)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	messages, err := s.service.ListMessages(r.Context(), conversationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, messages)
}

func (s *Server) handleSendOutbound(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		AgentID string `json:"agent_id"`
		Content string `json:"content"`
		Kind    string `json:"kind,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	message, err := s.service.SendOutbound(r.Context(), model.OutboundMessage{
		ConversationID: conversationID,
		AgentID:        req.AgentID,
		Content:        req.Content,
		Kind:           req.Kind,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, message)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	if err := s.service.MarkRead(r.Context(), conversationID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	if err := s.service.SetStatus(r.Context(), conversationID, req.Status); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (s *Server) handleGetChannelConfig(w http.ResponseWriter, r *http.Request) {
	config, err := s.service.GetChannelConfig(r.Context(), chi.URLParam(r, "channel"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, config)
}

func (s *Server) handleSaveChannelConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.ChannelConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	cfg.StoreID = tenant.MustFromContext(r.Context())
	cfg.Channel = chi.URLParam(r, "channel")

	if err := s.service.SaveChannelConfig(r.Context(), cfg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readyCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.readyCheck(ctx); err != nil {
			utils.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

func conversationIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

// writeServiceError maps service-layer errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		utils.WriteJSONResponse(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, apperrors.ErrBadRequest), errors.Is(err, apperrors.ErrValidation):
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrConflict):
		utils.WriteJSONResponse(w, http.StatusConflict, map[string]string{"error": "conflict"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		utils.WriteJSONResponse(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	default:
		log.Error("Request failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
