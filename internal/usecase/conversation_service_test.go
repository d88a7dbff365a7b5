package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ggovsaas/waorders/internal/apperrors"
	"github.com/ggovsaas/waorders/internal/model"
	storagemock "github.com/ggovsaas/waorders/internal/storage/mock"
	"github.com/ggovsaas/waorders/internal/tenant"
	"github.com/ggovsaas/waorders/pkg/logger"
)

func init() {
	// Package-level fallback; tests that care about output install a
	// per-test logger on the context instead.
	logger.Log = zap.NewNop()
}

func newServiceWithMocks() (*ConversationService, *storagemock.ConversationRepoMock, *storagemock.MessageRepoMock, *storagemock.ChannelConfigRepoMock) {
	conversationRepo := new(storagemock.ConversationRepoMock)
	messageRepo := new(storagemock.MessageRepoMock)
	configRepo := new(storagemock.ChannelConfigRepoMock)
	service := NewConversationService(conversationRepo, messageRepo, configRepo)
	return service, conversationRepo, messageRepo, configRepo
}

func testContext(t *testing.T, storeID string) context.Context {
	ctx := tenant.WithStoreID(context.Background(), storeID)
	return logger.WithLogger(ctx, zaptest.NewLogger(t))
}

func validInboundEvent(storeID string) model.InboundMessageEvent {
	return model.InboundMessageEvent{
		StoreID:            storeID,
		Channel:            model.ChannelWhatsApp,
		ExternalCustomerID: "15551234567",
		ExternalMessageID:  "wamid.AAA",
		Kind:               model.MessageKindText,
		Content:            "hello there",
		Timestamp:          time.Now().Unix(),
	}
}

// --- IngestInbound Tests --- //

func TestIngestInbound_NewMessage(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")
	event := validInboundEvent("store-1")

	conversation := &model.Conversation{ID: 42, StoreID: "store-1", Channel: model.ChannelWhatsApp, ExternalCustomerID: event.ExternalCustomerID}
	persisted := &model.Message{ID: 7, ConversationID: 42, StoreID: "store-1", CreatedAt: time.Now()}

	messageRepo.On("FindByExternalID", mock.Anything, "wamid.AAA").Return(nil, apperrors.ErrNotFound)
	conversationRepo.On("ResolveOrCreate", mock.Anything, mock.AnythingOfType("model.Conversation")).Return(conversation, true, nil)
	messageRepo.On("InsertInbound", mock.Anything, mock.AnythingOfType("model.Message")).Return(true, persisted, nil)
	conversationRepo.On("ApplyInboundSummary", mock.Anything, int64(42), "hello there", persisted.CreatedAt).Return(nil)

	result, err := service.IngestInbound(ctx, event)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeIngested, result.Outcome)
	assert.True(t, result.IsNew())
	assert.Equal(t, int64(42), result.ConversationID)
	assert.Equal(t, int64(7), result.MessageID)

	// Verify the message handed to the repository carries normalized fields.
	calls := messageRepo.Calls
	var inserted model.Message
	for _, c := range calls {
		if c.Method == "InsertInbound" {
			inserted = c.Arguments.Get(1).(model.Message)
		}
	}
	assert.Equal(t, int64(42), inserted.ConversationID)
	require.NotNil(t, inserted.ExternalID)
	assert.Equal(t, "wamid.AAA", *inserted.ExternalID)
	assert.Equal(t, model.SenderTypeCustomer, inserted.SenderType)
	assert.Equal(t, model.MessageStatusDelivered, inserted.Status)

	conversationRepo.AssertCalled(t, "ApplyInboundSummary", mock.Anything, int64(42), "hello there", persisted.CreatedAt)
}

func TestIngestInbound_DuplicateFastPath(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")
	event := validInboundEvent("store-1")

	existing := &model.Message{ID: 7, ConversationID: 42, StoreID: "store-1"}
	messageRepo.On("FindByExternalID", mock.Anything, "wamid.AAA").Return(existing, nil)

	result, err := service.IngestInbound(ctx, event)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDuplicate, result.Outcome)
	assert.False(t, result.IsNew())
	assert.Equal(t, int64(42), result.ConversationID)

	// A duplicate must not touch the conversation at all.
	conversationRepo.AssertNotCalled(t, "ResolveOrCreate", mock.Anything, mock.Anything)
	conversationRepo.AssertNotCalled(t, "ApplyInboundSummary", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	messageRepo.AssertNotCalled(t, "InsertInbound", mock.Anything, mock.Anything)
}

func TestIngestInbound_DuplicateAtInsert(t *testing.T) {
	// A concurrent delivery can slip past the fast path; the unique index on
	// external_id resolves the race and the summary must not be patched.
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")
	event := validInboundEvent("store-1")

	conversation := &model.Conversation{ID: 42, StoreID: "store-1"}
	winner := &model.Message{ID: 9, ConversationID: 42, StoreID: "store-1"}

	messageRepo.On("FindByExternalID", mock.Anything, "wamid.AAA").Return(nil, apperrors.ErrNotFound)
	conversationRepo.On("ResolveOrCreate", mock.Anything, mock.AnythingOfType("model.Conversation")).Return(conversation, false, nil)
	messageRepo.On("InsertInbound", mock.Anything, mock.AnythingOfType("model.Message")).Return(false, winner, nil)

	result, err := service.IngestInbound(ctx, event)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDuplicate, result.Outcome)
	assert.Equal(t, int64(9), result.MessageID)
	conversationRepo.AssertNotCalled(t, "ApplyInboundSummary", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestInbound_ValidationError(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	event := validInboundEvent("store-1")
	event.ExternalMessageID = "" // required

	result, err := service.IngestInbound(ctx, event)

	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, model.OutcomeFailed, result.Outcome)
	conversationRepo.AssertNotCalled(t, "ResolveOrCreate", mock.Anything, mock.Anything)
	messageRepo.AssertNotCalled(t, "InsertInbound", mock.Anything, mock.Anything)
}

func TestIngestInbound_StoreMismatch(t *testing.T) {
	service, _, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-2")
	event := validInboundEvent("store-1")

	result, err := service.IngestInbound(ctx, event)

	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, model.OutcomeFailed, result.Outcome)
	messageRepo.AssertNotCalled(t, "FindByExternalID", mock.Anything, mock.Anything)
}

func TestIngestInbound_ResolveConversationFails(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")
	event := validInboundEvent("store-1")

	messageRepo.On("FindByExternalID", mock.Anything, "wamid.AAA").Return(nil, apperrors.ErrNotFound)
	conversationRepo.On("ResolveOrCreate", mock.Anything, mock.AnythingOfType("model.Conversation")).Return(nil, false, apperrors.ErrDatabase)

	result, err := service.IngestInbound(ctx, event)

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err), "database errors must surface as retryable")
	assert.Equal(t, model.OutcomeFailed, result.Outcome)
	messageRepo.AssertNotCalled(t, "InsertInbound", mock.Anything, mock.Anything)
}

func TestIngestInbound_SummaryPatchFails(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")
	event := validInboundEvent("store-1")

	conversation := &model.Conversation{ID: 42, StoreID: "store-1"}
	persisted := &model.Message{ID: 7, ConversationID: 42, CreatedAt: time.Now()}

	messageRepo.On("FindByExternalID", mock.Anything, "wamid.AAA").Return(nil, apperrors.ErrNotFound)
	conversationRepo.On("ResolveOrCreate", mock.Anything, mock.AnythingOfType("model.Conversation")).Return(conversation, true, nil)
	messageRepo.On("InsertInbound", mock.Anything, mock.AnythingOfType("model.Message")).Return(true, persisted, nil)
	conversationRepo.On("ApplyInboundSummary", mock.Anything, int64(42), mock.Anything, mock.Anything).Return(apperrors.ErrDatabase)

	result, err := service.IngestInbound(ctx, event)

	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, result.Outcome)
}

// --- SendOutbound Tests --- //

func TestSendOutbound_Success(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	conversation := &model.Conversation{ID: 42, StoreID: "store-1"}
	created := &model.Message{ID: 11, ConversationID: 42, CreatedAt: time.Now()}

	conversationRepo.On("FindByID", mock.Anything, int64(42)).Return(conversation, nil)
	messageRepo.On("Insert", mock.Anything, mock.AnythingOfType("model.Message")).Return(created, nil)
	conversationRepo.On("ApplyOutboundSummary", mock.Anything, int64(42), "on our way", created.CreatedAt).Return(nil)

	message, err := service.SendOutbound(ctx, model.OutboundMessage{
		ConversationID: 42,
		AgentID:        "agent-7",
		Content:        "on our way",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(11), message.ID)

	var inserted model.Message
	for _, c := range messageRepo.Calls {
		if c.Method == "Insert" {
			inserted = c.Arguments.Get(1).(model.Message)
		}
	}
	assert.Equal(t, model.SenderTypeAgent, inserted.SenderType)
	assert.Equal(t, model.MessageStatusSent, inserted.Status)
	assert.Equal(t, model.MessageKindText, inserted.Kind, "kind defaults to text")
	assert.Nil(t, inserted.ExternalID, "outbound messages carry no external id")

	// Agent replies never bump the unread count.
	conversationRepo.AssertCalled(t, "ApplyOutboundSummary", mock.Anything, int64(42), "on our way", created.CreatedAt)
	conversationRepo.AssertNotCalled(t, "ApplyInboundSummary", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendOutbound_ConversationNotFound(t *testing.T) {
	service, conversationRepo, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	conversationRepo.On("FindByID", mock.Anything, int64(99)).Return(nil, apperrors.ErrNotFound)

	_, err := service.SendOutbound(ctx, model.OutboundMessage{
		ConversationID: 99,
		AgentID:        "agent-7",
		Content:        "hello?",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
	messageRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestSendOutbound_ValidationError(t *testing.T) {
	service, conversationRepo, _, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	_, err := service.SendOutbound(ctx, model.OutboundMessage{ConversationID: 42})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	conversationRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

// --- MarkRead / SetStatus Tests --- //

func TestMarkRead(t *testing.T) {
	service, conversationRepo, _, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	conversationRepo.On("MarkRead", mock.Anything, int64(42)).Return(nil)

	err := service.MarkRead(ctx, 42)

	require.NoError(t, err)
	conversationRepo.AssertCalled(t, "MarkRead", mock.Anything, int64(42))
}

func TestSetStatus_ValidTransitions(t *testing.T) {
	for _, status := range []string{
		model.ConversationStatusActive,
		model.ConversationStatusResolved,
		model.ConversationStatusArchived,
	} {
		service, conversationRepo, _, _ := newServiceWithMocks()
		ctx := testContext(t, "store-1")
		conversationRepo.On("SetStatus", mock.Anything, int64(1), status).Return(nil)

		require.NoError(t, service.SetStatus(ctx, 1, status))
	}
}

func TestSetStatus_UnknownStatus(t *testing.T) {
	service, conversationRepo, _, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	err := service.SetStatus(ctx, 1, "closed")

	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
	conversationRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}

// --- Query Tests --- //

func TestListConversations(t *testing.T) {
	service, conversationRepo, _, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	expected := []model.Conversation{{ID: 2}, {ID: 1}}
	conversationRepo.On("List", mock.Anything, model.ChannelWhatsApp).Return(expected, nil)

	conversations, err := service.ListConversations(ctx, model.ChannelWhatsApp)

	require.NoError(t, err)
	assert.Equal(t, expected, conversations)
}

func TestListConversations_UnknownChannel(t *testing.T) {
	service, conversationRepo, _, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	_, err := service.ListConversations(ctx, "telegram")

	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
	conversationRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListMessages(t *testing.T) {
	service, _, messageRepo, _ := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	expected := []model.Message{{ID: 1}, {ID: 2}}
	messageRepo.On("ListByConversation", mock.Anything, int64(42)).Return(expected, nil)

	messages, err := service.ListMessages(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, expected, messages)
}

// --- Channel Config Tests --- //

func TestResolveStoreByPhoneNumberID(t *testing.T) {
	service, _, _, configRepo := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	configRepo.On("FindByPhoneNumberID", mock.Anything, "phone-123").Return(
		&model.ChannelConfig{StoreID: "store-9", Channel: model.ChannelWhatsApp, PhoneNumberID: "phone-123"}, nil)

	storeID, err := service.ResolveStoreByPhoneNumberID(ctx, "phone-123")

	require.NoError(t, err)
	assert.Equal(t, "store-9", storeID)
}

func TestSaveChannelConfig_UnknownChannel(t *testing.T) {
	service, _, _, configRepo := newServiceWithMocks()
	ctx := testContext(t, "store-1")

	err := service.SaveChannelConfig(ctx, model.ChannelConfig{StoreID: "store-1", Channel: "telegram"})

	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
	configRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
