package storage

import (
	"errors"
	"fmt"
	"time"

	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ggovsaas/waorders/internal/apperrors"
	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/internal/tenant"
	"github.com/ggovsaas/waorders/pkg/logger"
	"github.com/ggovsaas/waorders/pkg/utils"
)

// ResolveOrCreateConversation performs an optimistic insert with conflict
// fallback: INSERT ... ON CONFLICT (store_id, channel, external_customer_id)
// DO NOTHING, then re-fetch when the row already existed. This is the
// race-safe replacement for read-then-insert; two concurrent deliveries for
// the same customer converge on one row.
func (r *PostgresRepo) ResolveOrCreateConversation(ctx context.Context, conversation model.Conversation) (*model.Conversation, bool, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}
	if storeID != conversation.StoreID {
		return nil, false, fmt.Errorf("%w: conversation StoreID %s does not match tenant store ID %s", apperrors.ErrBadRequest, conversation.StoreID, storeID)
	}

	conversation.UpdatedAt = utils.Now()
	created := false

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}, {Name: "channel"}, {Name: "external_customer_id"}},
			DoNothing: true,
		}).Create(&conversation)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}

		if result.RowsAffected > 0 {
			created = true
			return nil
		}

		// Conflict: someone else holds the natural key. Fetch the winner.
		created = false
		fetch := r.db.WithContext(ctx).
			Where("store_id = ? AND channel = ? AND external_customer_id = ?",
				conversation.StoreID, conversation.Channel, conversation.ExternalCustomerID).
			First(&conversation)
		if fetch.Error != nil {
			return checkConstraintViolation(fetch.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ResolveOrCreateConversation Commit", operation)
	observer.ObserveDbOperationDuration("resolve_or_create", "conversation", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to resolve or create conversation after retries",
			zap.String("external_customer_id", conversation.ExternalCustomerID),
			zap.Error(commitErr))
		return nil, false, commitErr
	}

	return &conversation, created, nil
}

// ApplyInboundConversationSummary patches the summary fields for an inbound
// message: last message text/time, updated_at, and an atomic unread_count
// increment. Runs only after the message row was actually inserted, so a
// deduped re-delivery never reaches this statement.
func (r *PostgresRepo) ApplyInboundConversationSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error {
	return r.applySummary(ctx, conversationID, lastMessage, at, true)
}

// ApplyOutboundConversationSummary patches the summary fields for an
// agent-authored message. Unread count is customer-facing only and is not
// incremented.
func (r *PostgresRepo) ApplyOutboundConversationSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error {
	return r.applySummary(ctx, conversationID, lastMessage, at, false)
}

func (r *PostgresRepo) applySummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time, incrementUnread bool) error {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	updates := map[string]interface{}{
		"last_message":    lastMessage,
		"last_message_at": at,
		"updated_at":      utils.Now(),
	}
	if incrementUnread {
		updates["unread_count"] = gorm.Expr("unread_count + ?", 1)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND store_id = ?", conversationID, storeID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %d not found for summary update", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	opName := "ApplyOutboundConversationSummary"
	if incrementUnread {
		opName = "ApplyInboundConversationSummary"
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, opName+" Commit", operation)
	observer.ObserveDbOperationDuration("summary_update", "conversation", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to apply conversation summary after retries",
			zap.Int64("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// MarkConversationRead resets the unread count and bumps updated_at.
func (r *PostgresRepo) MarkConversationRead(ctx context.Context, conversationID int64) error {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND store_id = ?", conversationID, storeID).
			Updates(map[string]interface{}{
				"unread_count": 0,
				"updated_at":   utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %d not found for mark read", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkConversationRead Commit", operation)
	observer.ObserveDbOperationDuration("mark_read", "conversation", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark conversation read after retries",
			zap.Int64("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// SetConversationStatus applies a lifecycle transition (active | resolved |
// archived). All transitions are agent-triggered; none is automatic.
func (r *PostgresRepo) SetConversationStatus(ctx context.Context, conversationID int64, status string) error {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}
	if !model.ValidConversationStatus(status) {
		return fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrBadRequest, status)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND store_id = ?", conversationID, storeID).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation %d not found for status update", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetConversationStatus Commit", operation)
	observer.ObserveDbOperationDuration("set_status", "conversation", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to set conversation status after retries",
			zap.Int64("conversation_id", conversationID),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindConversationByID finds a conversation by primary key within the tenant.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, conversationID int64) (*model.Conversation, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	var conversation model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND store_id = ?", conversationID, storeID).
			First(&conversation)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find", "conversation", storeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find conversation after retries",
			zap.Int64("conversation_id", conversationID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &conversation, nil
}

// ListConversations lists the tenant's conversations, newest-first by last
// message time, optionally filtered by channel.
func (r *PostgresRepo) ListConversations(ctx context.Context, channel string) ([]model.Conversation, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	var conversations []model.Conversation
	operation := func() error {
		query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
		if channel != "" {
			query = query.Where("channel = ?", channel)
		}
		result := query.Order("last_message_at DESC").Find(&conversations)
		if result.Error != nil {
			// Find multiple doesn't return ErrRecordNotFound
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListConversations", operation)
	observer.ObserveDbOperationDuration("list", "conversation", storeID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list conversations after retries",
			zap.String("channel", channel),
			zap.Error(findErr))
		return nil, findErr
	}

	return conversations, nil
}
