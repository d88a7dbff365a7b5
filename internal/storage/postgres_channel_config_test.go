package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggovsaas/waorders/internal/apperrors"
	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/pkg/utils"
)

func testChannelConfig() model.ChannelConfig {
	return model.ChannelConfig{
		StoreID:       testStoreID,
		Channel:       model.ChannelWhatsApp,
		PhoneNumberID: "104211122233344",
		AccessToken:   "EAAG-test-token",
		VerifyToken:   "verify-secret",
		IsActive:      true,
	}
}

func channelConfigColumns() []string {
	return []string{
		"id", "store_id", "channel", "phone_number_id", "access_token",
		"verify_token", "is_active", "created_at", "updated_at",
	}
}

func channelConfigRow(id int64, cfg model.ChannelConfig) *sqlmock.Rows {
	now := utils.Now()
	return sqlmock.NewRows(channelConfigColumns()).AddRow(
		id, cfg.StoreID, cfg.Channel, cfg.PhoneNumberID, cfg.AccessToken,
		cfg.VerifyToken, cfg.IsActive, now, now,
	)
}

func TestSaveChannelConfig_Upsert(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	defer teardown()
	ctx := contextWithTestStore()

	mock.ExpectQuery(`INSERT INTO "channel_configs" (.+) ON CONFLICT \("store_id","channel"\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	err := repo.SaveChannelConfig(ctx, testChannelConfig())
	assert.NoError(t, err)
}

func TestSaveChannelConfig_TenantMismatch(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	defer teardown()

	cfg := testChannelConfig()
	cfg.StoreID = "some-other-store"

	err := repo.SaveChannelConfig(contextWithTestStore(), cfg)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestFindChannelConfigByStore(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	defer teardown()
	ctx := contextWithTestStore()

	mock.ExpectQuery(`SELECT (.+) FROM "channel_configs" WHERE store_id = \$1 AND channel = \$2`).
		WithArgs(testStoreID, model.ChannelWhatsApp, 1).
		WillReturnRows(channelConfigRow(1, testChannelConfig()))

	cfg, err := repo.FindChannelConfigByStore(ctx, model.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "104211122233344", cfg.PhoneNumberID)
}

func TestFindChannelConfigByStore_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	defer teardown()
	ctx := contextWithTestStore()

	mock.ExpectQuery(`SELECT (.+) FROM "channel_configs"`).
		WillReturnRows(sqlmock.NewRows(channelConfigColumns()))

	_, err := repo.FindChannelConfigByStore(ctx, model.ChannelInstagram)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFindChannelConfigByPhoneNumberID_NoTenantRequired(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	defer teardown()

	mock.ExpectQuery(`SELECT (.+) FROM "channel_configs" WHERE phone_number_id = \$1 AND is_active = \$2`).
		WithArgs("104211122233344", true, 1).
		WillReturnRows(channelConfigRow(1, testChannelConfig()))

	// Webhook attribution runs before any tenant is known.
	cfg, err := repo.FindChannelConfigByPhoneNumberID(context.Background(), "104211122233344")
	require.NoError(t, err)
	assert.Equal(t, testStoreID, cfg.StoreID)
}

func TestFindChannelConfigByPhoneNumberID_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	defer teardown()

	mock.ExpectQuery(`SELECT (.+) FROM "channel_configs"`).
		WillReturnRows(sqlmock.NewRows(channelConfigColumns()))

	_, err := repo.FindChannelConfigByPhoneNumberID(context.Background(), "unknown-phone")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
