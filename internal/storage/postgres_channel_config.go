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

// SaveChannelConfig upserts a tenant's provider credentials for one channel.
// Conflict target is the (store_id, channel) unique index.
func (r *PostgresRepo) SaveChannelConfig(ctx context.Context, config model.ChannelConfig) error {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}
	if storeID != config.StoreID {
		return fmt.Errorf("%w: config StoreID %s does not match tenant store ID %s", apperrors.ErrBadRequest, config.StoreID, storeID)
	}

	config.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns(config.GetUpdatableFields()),
		}).Create(&config)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveChannelConfig Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "channel_config", storeID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save channel config after retries",
			zap.String("channel", config.Channel),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindChannelConfigByStore returns the tenant's config for one channel.
func (r *PostgresRepo) FindChannelConfigByStore(ctx context.Context, channel string) (*model.ChannelConfig, error) {
	storeID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant store ID: %w", apperrors.ErrUnauthorized, err)
	}

	var config model.ChannelConfig
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("store_id = ? AND channel = ?", storeID, channel).
			First(&config)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindChannelConfigByStore", operation)
	observer.ObserveDbOperationDuration("find", "channel_config", storeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find channel config after retries",
			zap.String("channel", channel),
			zap.Error(findErr))
		return nil, findErr
	}

	return &config, nil
}

// FindChannelConfigByPhoneNumberID attributes an inbound webhook delivery to
// the owning store via the provider's phone number id. Deliveries arrive
// before any tenant is known, so this lookup is intentionally not
// tenant-scoped.
func (r *PostgresRepo) FindChannelConfigByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.ChannelConfig, error) {
	var config model.ChannelConfig
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("phone_number_id = ? AND is_active = ?", phoneNumberID, true).
			First(&config)
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
	findErr := retryableOperation(ctx, readPolicy, "FindChannelConfigByPhoneNumberID", operation)
	observer.ObserveDbOperationDuration("find_by_phone_number_id", "channel_config", config.StoreID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find channel config by phone number id after retries",
			zap.String("phone_number_id", phoneNumberID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &config, nil
}
