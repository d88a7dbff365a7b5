package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// InsertInboundMessage appends an inbound message with an ON CONFLICT
// (external_id) DO NOTHING guard. If the external id was already persisted by
// a concurrent delivery, no row is written and the existing message is
// returned with inserted=false. This is the second line of defense behind the
// fast-path lookup in the ingestion service.
func (r *PostgresRepo) InsertInboundMessage(ctx context.Context, message model.Message) (bool, *model.Message, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}
	if storeID != message.StoreID {
		return false, nil, fmt.Errorf("%w: message StoreID %s does not match tenant store ID %s", apperrors.ErrBadRequest, message.StoreID, storeID)
	}
	if message.ExternalID == nil || *message.ExternalID == "" {
		return false, nil, fmt.Errorf("%w: inbound message requires an external id", apperrors.ErrBadRequest)
	}

	inserted := false

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(&message)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}

		if result.RowsAffected > 0 {
			inserted = true
			return nil
		}

		// Duplicate external id raced us in. Fetch the persisted row.
		inserted = false
		fetch := r.db.WithContext(ctx).
			Where("external_id = ?", *message.ExternalID).
			First(&message)
		if fetch.Error != nil {
			return checkConstraintViolation(fetch.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "InsertInboundMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to insert inbound message after retries",
			zap.Stringp("external_id", message.ExternalID),
			zap.Error(commitErr))
		return false, nil, commitErr
	}

	return inserted, &message, nil
}

// InsertMessage appends an agent- or bot-authored message. No dedup guard:
// the caller is a trusted internal action, not a retried external callback.
func (r *PostgresRepo) InsertMessage(ctx context.Context, message model.Message) (*model.Message, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}
	if storeID != message.StoreID {
		return nil, fmt.Errorf("%w: message StoreID %s does not match tenant store ID %s", apperrors.ErrBadRequest, message.StoreID, storeID)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "InsertMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to insert message after retries",
			zap.Int64("conversation_id", message.ConversationID),
			zap.Error(commitErr))
		return nil, commitErr
	}

	return &message, nil
}

// FindMessageByExternalID looks up a message by the provider's external id.
// This is the deduplication fast path; ErrNotFound means the id is unseen.
func (r *PostgresRepo) FindMessageByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("external_id = ? AND store_id = ?", externalID, storeID).
			First(&message)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %w", apperrors.ErrNotFound, result.Error)
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByExternalID", operation)
	observer.ObserveDbOperationDuration("find", "message", storeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find message by external id after retries",
			zap.String("external_id", externalID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &message, nil
}

// ListMessagesByConversation returns a conversation's messages in
// chronological order, oldest first.
func (r *PostgresRepo) ListMessagesByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	var messages []model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ? AND store_id = ?", conversationID, storeID).
			Order("created_at ASC").
			Find(&messages)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListMessagesByConversation", operation)
	observer.ObserveDbOperationDuration("list", "message", storeID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list messages after retries",
			zap.Int64("conversation_id", conversationID),
			zap.Error(findErr))
		return nil, findErr
	}

	return messages, nil
}
