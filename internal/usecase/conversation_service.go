package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ggovsaas/waorders/internal/apperrors"
	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/internal/storage"
	"github.com/ggovsaas/waorders/internal/tenant"
	"github.com/ggovsaas/waorders/internal/validator"
	"github.com/ggovsaas/waorders/pkg/logger"
	"github.com/ggovsaas/waorders/pkg/utils"
)

// ConversationService threads normalized inbound messages into conversations
// and serves the agent-facing operations on top of the same store.
type ConversationService struct {
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	configRepo       storage.ChannelConfigRepo
}

// NewConversationService creates a new conversation service
func NewConversationService(
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	configRepo storage.ChannelConfigRepo,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		configRepo:       configRepo,
	}
}

// handleRepositoryError maps standard apperrors from the repository layer
// to FatalError or RetryableError for the use case layer.
func handleRepositoryError(ctx context.Context, err error, operation string, externalID string) error {
	if err == nil {
		return nil
	}

	log := logger.FromContext(ctx)

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
	}
	if externalID != "" {
		logFields = append(logFields, zap.String("external_message_id", externalID))
	}

	// Specific fatal errors (cannot be resolved by retry)
	if errors.Is(err, apperrors.ErrNotFound) {
		log.Warn("Repository operation failed: Not found", logFields...)
		return apperrors.NewFatal(err, "%s failed: resource not found", operation)
	}
	if errors.Is(err, apperrors.ErrDuplicate) {
		log.Warn("Repository operation failed: Duplicate resource", logFields...)
		return apperrors.NewFatal(err, "%s failed: duplicate resource", operation)
	}
	if errors.Is(err, apperrors.ErrBadRequest) {
		log.Warn("Repository operation failed: Bad request", logFields...)
		return apperrors.NewFatal(err, "%s failed: bad request data", operation)
	}
	if errors.Is(err, apperrors.ErrUnauthorized) {
		log.Error("Repository operation failed: Unauthorized", logFields...)
		return apperrors.NewFatal(err, "%s failed: unauthorized", operation)
	}

	// General database errors (potentially retryable)
	if errors.Is(err, apperrors.ErrDatabase) {
		log.Error("Repository operation failed: Database error", logFields...)
		return apperrors.NewRetryable(err, "%s failed: database error", operation)
	}
	if errors.Is(err, apperrors.ErrTimeout) {
		log.Warn("Repository operation failed: Timeout", logFields...)
		return apperrors.NewRetryable(err, "%s failed: operation timeout", operation)
	}

	// Wrap other unexpected errors as fatal by default.
	log.Error("Repository operation failed: Unexpected error", logFields...)
	return apperrors.NewFatal(err, "%s failed: unexpected repository error", operation)
}

// IngestInbound threads one normalized inbound message into its conversation,
// exactly once per unique external message id.
//
// Step 1: dedupe fast path by external id - a re-delivered message returns the
// existing conversation without touching anything.
// Step 2: resolve-or-create the conversation for (store, channel, customer).
// Step 3: append the message; the unique index on external_id catches the
// duplicate that races past step 1. The conversation summary is patched only
// when the row was actually inserted, so re-delivery never bumps the unread
// count a second time.
func (s *ConversationService) IngestInbound(ctx context.Context, event model.InboundMessageEvent) (model.IngestResult, error) {
	log := logger.FromContext(ctx)

	if err := validator.Validate(event); err != nil {
		log.Error("Inbound event validation failed",
			zap.String("external_message_id", event.ExternalMessageID),
			zap.Error(err),
		)
		return model.IngestResult{Outcome: model.OutcomeFailed},
			apperrors.NewFatal(fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error()), "inbound event validation failed")
	}

	storeID, err := tenant.FromContext(ctx)
	if err != nil || storeID == "" {
		log.Error("Failed to get tenant store ID from context", zap.Error(err))
		return model.IngestResult{Outcome: model.OutcomeFailed}, apperrors.NewFatal(err, "failed to get tenant store ID from context")
	}
	if event.StoreID != storeID {
		mismatchErr := fmt.Errorf("event store ID %s does not match tenant store ID %s", event.StoreID, storeID)
		return model.IngestResult{Outcome: model.OutcomeFailed}, apperrors.NewFatal(mismatchErr, "store validation failed")
	}

	// Step 1 - deduplication fast path.
	existing, err := s.messageRepo.FindByExternalID(ctx, event.ExternalMessageID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return model.IngestResult{Outcome: model.OutcomeFailed},
			handleRepositoryError(ctx, err, "FindMessageByExternalID", event.ExternalMessageID)
	}
	if existing != nil {
		log.Debug("Duplicate delivery, skipping",
			zap.String("external_message_id", event.ExternalMessageID),
			zap.Int64("conversation_id", existing.ConversationID),
		)
		observer.IncMessageIngested(storeID, string(model.OutcomeDuplicate))
		return model.IngestResult{
			ConversationID: existing.ConversationID,
			MessageID:      existing.ID,
			Outcome:        model.OutcomeDuplicate,
		}, nil
	}

	// Step 2 - conversation resolution.
	conversation, created, err := s.conversationRepo.ResolveOrCreate(ctx, model.Conversation{
		StoreID:            event.StoreID,
		Channel:            event.Channel,
		ExternalCustomerID: event.ExternalCustomerID,
		CustomerPhone:      event.ExternalCustomerID,
		Status:             model.ConversationStatusActive,
	})
	if err != nil {
		return model.IngestResult{Outcome: model.OutcomeFailed},
			handleRepositoryError(ctx, err, "ResolveOrCreateConversation", event.ExternalMessageID)
	}

	// Step 3 - message append with conflict guard.
	externalID := event.ExternalMessageID
	message := model.Message{
		ConversationID: conversation.ID,
		StoreID:        event.StoreID,
		ExternalID:     &externalID,
		SenderID:       event.ExternalCustomerID,
		SenderType:     model.SenderTypeCustomer,
		Kind:           event.Kind,
		Content:        event.Content,
		MediaRef:       event.MediaRef,
		Status:         model.MessageStatusDelivered,
		CreatedAt:      utils.Now(),
	}
	if !event.Metadata.IsEmpty() {
		message.Metadata = datatypes.JSON(utils.MustMarshalJSON(event.Metadata))
	}

	inserted, persisted, err := s.messageRepo.InsertInbound(ctx, message)
	if err != nil {
		return model.IngestResult{Outcome: model.OutcomeFailed},
			handleRepositoryError(ctx, err, "InsertInboundMessage", event.ExternalMessageID)
	}
	if !inserted {
		// A concurrent delivery won the insert. Same contract as the fast path.
		log.Debug("Duplicate delivery caught at insert",
			zap.String("external_message_id", event.ExternalMessageID),
			zap.Int64("conversation_id", persisted.ConversationID),
		)
		observer.IncMessageIngested(storeID, string(model.OutcomeDuplicate))
		return model.IngestResult{
			ConversationID: persisted.ConversationID,
			MessageID:      persisted.ID,
			Outcome:        model.OutcomeDuplicate,
		}, nil
	}

	// Summary patch happens only for an actually-inserted message.
	if err := s.conversationRepo.ApplyInboundSummary(ctx, conversation.ID, event.Content, persisted.CreatedAt); err != nil {
		return model.IngestResult{Outcome: model.OutcomeFailed},
			handleRepositoryError(ctx, err, "ApplyInboundSummary", event.ExternalMessageID)
	}

	observer.IncMessageIngested(storeID, string(model.OutcomeIngested))
	log.Info("Ingested inbound message",
		zap.String("external_message_id", event.ExternalMessageID),
		zap.Int64("conversation_id", conversation.ID),
		zap.String("kind", event.Kind),
		zap.Bool("conversation_created", created),
	)

	return model.IngestResult{
		ConversationID: conversation.ID,
		MessageID:      persisted.ID,
		Outcome:        model.OutcomeIngested,
	}, nil
}

// SendOutbound appends an agent-authored message to an existing conversation
// and patches the summary without incrementing the unread count. No dedup:
// this path is a trusted internal action, not a retried external callback.
func (s *ConversationService) SendOutbound(ctx context.Context, outbound model.OutboundMessage) (*model.Message, error) {
	log := logger.FromContext(ctx)

	if err := validator.Validate(outbound); err != nil {
		log.Error("Outbound message validation failed",
			zap.Int64("conversation_id", outbound.ConversationID),
			zap.Error(err),
		)
		return nil, apperrors.NewFatal(fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error()), "outbound message validation failed")
	}

	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "failed to get tenant store ID from context")
	}

	// Ensure the conversation exists and belongs to the tenant.
	conversation, err := s.conversationRepo.FindByID(ctx, outbound.ConversationID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindConversationByID", "")
	}

	kind := outbound.Kind
	if kind == "" {
		kind = model.MessageKindText
	}

	message, err := s.messageRepo.Insert(ctx, model.Message{
		ConversationID: conversation.ID,
		StoreID:        storeID,
		SenderID:       outbound.AgentID,
		SenderType:     model.SenderTypeAgent,
		Kind:           kind,
		Content:        outbound.Content,
		Status:         model.MessageStatusSent,
		CreatedAt:      utils.Now(),
	})
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "InsertMessage", "")
	}

	if err := s.conversationRepo.ApplyOutboundSummary(ctx, conversation.ID, outbound.Content, message.CreatedAt); err != nil {
		return nil, handleRepositoryError(ctx, err, "ApplyOutboundSummary", "")
	}

	log.Info("Sent outbound message",
		zap.Int64("conversation_id", conversation.ID),
		zap.String("agent_id", outbound.AgentID),
	)
	return message, nil
}

// MarkRead resets a conversation's unread count to zero.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID int64) error {
	if err := s.conversationRepo.MarkRead(ctx, conversationID); err != nil {
		return handleRepositoryError(ctx, err, "MarkConversationRead", "")
	}
	return nil
}

// SetStatus applies an agent-triggered lifecycle transition.
func (s *ConversationService) SetStatus(ctx context.Context, conversationID int64, status string) error {
	if !model.ValidConversationStatus(status) {
		return apperrors.NewFatal(
			fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrBadRequest, status),
			"status validation failed")
	}
	if err := s.conversationRepo.SetStatus(ctx, conversationID, status); err != nil {
		return handleRepositoryError(ctx, err, "SetConversationStatus", "")
	}
	return nil
}

// ListConversations returns the tenant's conversations, newest-first by last
// message time, optionally filtered by channel.
func (s *ConversationService) ListConversations(ctx context.Context, channel string) ([]model.Conversation, error) {
	if channel != "" && !model.ValidChannel(channel) {
		return nil, apperrors.NewFatal(
			fmt.Errorf("%w: unknown channel %q", apperrors.ErrBadRequest, channel),
			"channel validation failed")
	}
	conversations, err := s.conversationRepo.List(ctx, channel)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "ListConversations", "")
	}
	return conversations, nil
}

// ListMessages returns a conversation's messages oldest-first.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	messages, err := s.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "ListMessagesByConversation", "")
	}
	return messages, nil
}

// SaveChannelConfig upserts the tenant's provider credentials for a channel.
func (s *ConversationService) SaveChannelConfig(ctx context.Context, config model.ChannelConfig) error {
	if !model.ValidChannel(config.Channel) {
		return apperrors.NewFatal(
			fmt.Errorf("%w: unknown channel %q", apperrors.ErrBadRequest, config.Channel),
			"channel validation failed")
	}
	if err := s.configRepo.Save(ctx, config); err != nil {
		return handleRepositoryError(ctx, err, "SaveChannelConfig", "")
	}
	return nil
}

// GetChannelConfig returns the tenant's config for a channel.
func (s *ConversationService) GetChannelConfig(ctx context.Context, channel string) (*model.ChannelConfig, error) {
	config, err := s.configRepo.FindByStore(ctx, channel)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindChannelConfigByStore", "")
	}
	return config, nil
}

// ResolveStoreByPhoneNumberID attributes a webhook delivery to the owning
// store. Returns ErrNotFound (wrapped fatal) when no active config matches.
func (s *ConversationService) ResolveStoreByPhoneNumberID(ctx context.Context, phoneNumberID string) (string, error) {
	config, err := s.configRepo.FindByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		return "", handleRepositoryError(ctx, err, "FindChannelConfigByPhoneNumberID", "")
	}
	return config.StoreID, nil
}
