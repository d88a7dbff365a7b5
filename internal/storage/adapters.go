package storage

import (
	"context"
	"time"

	"github.com/ggovsaas/waorders/internal/model"
)

// Adapters narrow the concrete PostgresRepo to the per-entity interfaces the
// service layer depends on.

// ConversationRepoAdapter adapts PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	repo *PostgresRepo
}

// NewConversationRepoAdapter creates a new adapter
func NewConversationRepoAdapter(repo *PostgresRepo) *ConversationRepoAdapter {
	return &ConversationRepoAdapter{repo: repo}
}

func (a *ConversationRepoAdapter) ResolveOrCreate(ctx context.Context, conversation model.Conversation) (*model.Conversation, bool, error) {
	return a.repo.ResolveOrCreateConversation(ctx, conversation)
}

func (a *ConversationRepoAdapter) ApplyInboundSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error {
	return a.repo.ApplyInboundConversationSummary(ctx, conversationID, lastMessage, at)
}

func (a *ConversationRepoAdapter) ApplyOutboundSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error {
	return a.repo.ApplyOutboundConversationSummary(ctx, conversationID, lastMessage, at)
}

func (a *ConversationRepoAdapter) MarkRead(ctx context.Context, conversationID int64) error {
	return a.repo.MarkConversationRead(ctx, conversationID)
}

func (a *ConversationRepoAdapter) SetStatus(ctx context.Context, conversationID int64, status string) error {
	return a.repo.SetConversationStatus(ctx, conversationID, status)
}

func (a *ConversationRepoAdapter) FindByID(ctx context.Context, conversationID int64) (*model.Conversation, error) {
	return a.repo.FindConversationByID(ctx, conversationID)
}

func (a *ConversationRepoAdapter) List(ctx context.Context, channel string) ([]model.Conversation, error) {
	return a.repo.ListConversations(ctx, channel)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// MessageRepoAdapter adapts PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	repo *PostgresRepo
}

// NewMessageRepoAdapter creates a new adapter
func NewMessageRepoAdapter(repo *PostgresRepo) *MessageRepoAdapter {
	return &MessageRepoAdapter{repo: repo}
}

func (a *MessageRepoAdapter) InsertInbound(ctx context.Context, message model.Message) (bool, *model.Message, error) {
	return a.repo.InsertInboundMessage(ctx, message)
}

func (a *MessageRepoAdapter) Insert(ctx context.Context, message model.Message) (*model.Message, error) {
	return a.repo.InsertMessage(ctx, message)
}

func (a *MessageRepoAdapter) FindByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	return a.repo.FindMessageByExternalID(ctx, externalID)
}

func (a *MessageRepoAdapter) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	return a.repo.ListMessagesByConversation(ctx, conversationID)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ChannelConfigRepoAdapter adapts PostgresRepo to the ChannelConfigRepo interface
type ChannelConfigRepoAdapter struct {
	repo *PostgresRepo
}

// NewChannelConfigRepoAdapter creates a new adapter
func NewChannelConfigRepoAdapter(repo *PostgresRepo) *ChannelConfigRepoAdapter {
	return &ChannelConfigRepoAdapter{repo: repo}
}

func (a *ChannelConfigRepoAdapter) Save(ctx context.Context, config model.ChannelConfig) error {
	return a.repo.SaveChannelConfig(ctx, config)
}

func (a *ChannelConfigRepoAdapter) FindByStore(ctx context.Context, channel string) (*model.ChannelConfig, error) {
	return a.repo.FindChannelConfigByStore(ctx, channel)
}

func (a *ChannelConfigRepoAdapter) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.ChannelConfig, error) {
	return a.repo.FindChannelConfigByPhoneNumberID(ctx, phoneNumberID)
}

func (a *ChannelConfigRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// Compile-time interface checks
var (
	_ ConversationRepo  = (*ConversationRepoAdapter)(nil)
	_ MessageRepo       = (*MessageRepoAdapter)(nil)
	_ ChannelConfigRepo = (*ChannelConfigRepoAdapter)(nil)
)
