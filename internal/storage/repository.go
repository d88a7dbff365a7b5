package storage

import (
	"context"
	"time"

	"github.com/ggovsaas/waorders/internal/model"
)

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	// ResolveOrCreate inserts the conversation if its natural key
	// (store_id, channel, external_customer_id) is unseen, otherwise returns
	// the existing row. The second return reports whether a row was created.
	ResolveOrCreate(ctx context.Context, conversation model.Conversation) (*model.Conversation, bool, error)
	// ApplyInboundSummary sets the last-message fields and atomically
	// increments the unread count.
	ApplyInboundSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error
	// ApplyOutboundSummary sets the last-message fields without touching the
	// unread count.
	ApplyOutboundSummary(ctx context.Context, conversationID int64, lastMessage string, at time.Time) error
	MarkRead(ctx context.Context, conversationID int64) error
	SetStatus(ctx context.Context, conversationID int64, status string) error
	FindByID(ctx context.Context, conversationID int64) (*model.Conversation, error)
	List(ctx context.Context, channel string) ([]model.Conversation, error)
	Close(ctx context.Context) error
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	// InsertInbound appends an inbound message. The unique index on
	// external_id turns a concurrent duplicate delivery into a conflict; the
	// first return reports whether the row was actually inserted, and on a
	// conflict the previously persisted message is returned instead.
	InsertInbound(ctx context.Context, message model.Message) (bool, *model.Message, error)
	Insert(ctx context.Context, message model.Message) (*model.Message, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	Close(ctx context.Context) error
}

// ChannelConfigRepo defines channel configuration storage operations
type ChannelConfigRepo interface {
	Save(ctx context.Context, config model.ChannelConfig) error
	FindByStore(ctx context.Context, channel string) (*model.ChannelConfig, error)
	// FindByPhoneNumberID attributes a webhook delivery to a store; it runs
	// before any tenant context exists and is therefore not tenant-scoped.
	FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.ChannelConfig, error)
	Close(ctx context.Context) error
}
