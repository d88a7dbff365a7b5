package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ggovsaas/waorders/internal/model"
)

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

// ResolveOrCreate mocks the ResolveOrCreate method
func (m *ConversationRepoMock) ResolveOrCreate(ctx context.Context, conversation model.Conversation) (*model.Conversation, bool, error) {
	args := m.Called(ctx, conversation)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Conversation), args.Bool(1), args.Error(2)
}

// ApplyInboundSummary mocks the ApplyInboundSummary method
func (m *ConversationRepoMock) ApplyInboundSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error {
	args := m.Called(ctx, conversationID, lastMessage, at)
	return args.Error(0)
}

// ApplyOutboundSummary mocks the ApplyOutboundSummary method
func (m *ConversationRepoMock) ApplyOutboundSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error {
	args := m.Called(ctx, conversationID, lastMessage, at)
	return args.Error(0)
}

// MarkRead mocks the MarkRead method
func (m *ConversationRepoMock) MarkRead(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// SetStatus mocks the SetStatus method
func (m *ConversationRepoMock) SetStatus(ctx context.Context, conversationID int64, status string) error {
	args := m.Called(ctx, conversationID, status)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ConversationRepoMock) FindByID(ctx context.Context, conversationID int64) (*model.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// List mocks the List method
func (m *ConversationRepoMock) List(ctx context.Context, channel string) ([]model.Conversation, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// Close mocks the Close method
func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// InsertInbound mocks the InsertInbound method
func (m *MessageRepoMock) InsertInbound(ctx context.Context, message model.Message) (bool, *model.Message, error) {
	args := m.Called(ctx, message)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*model.Message), args.Error(2)
}

// Insert mocks the Insert method
func (m *MessageRepoMock) Insert(ctx context.Context, message model.Message) (*model.Message, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// FindByExternalID mocks the FindByExternalID method
func (m *MessageRepoMock) FindByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// ListByConversation mocks the ListByConversation method
func (m *MessageRepoMock) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ChannelConfigRepo Mock ---

// ChannelConfigRepoMock mocks the ChannelConfigRepo interface
type ChannelConfigRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *ChannelConfigRepoMock) Save(ctx context.Context, config model.ChannelConfig) error {
	args := m.Called(ctx, config)
	return args.Error(0)
}

// FindByStore mocks the FindByStore method
func (m *ChannelConfigRepoMock) FindByStore(ctx context.Context, channel string) (*model.ChannelConfig, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelConfig), args.Error(1)
}

// FindByPhoneNumberID mocks the FindByPhoneNumberID method
func (m *ChannelConfigRepoMock) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.ChannelConfig, error) {
	args := m.Called(ctx, phoneNumberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelConfig), args.Error(1)
}

// Close mocks the Close method
func (m *ChannelConfigRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
