package model

import (
	"time"

	"gorm.io/datatypes"
)

// Channel identifies the messaging surface a conversation originated from.
// Only the WhatsApp channel has a live ingestion path; the rest exist so the
// dashboard can filter and the schema does not need migrating when they land.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
	ChannelGoogle    = "google"
	ChannelPOS       = "pos"
	ChannelWeb       = "web"
)

// Conversation lifecycle status. Transitions are agent-triggered only.
const (
	ConversationStatusActive   = "active"
	ConversationStatusResolved = "resolved"
	ConversationStatusArchived = "archived"
)

// Conversation is the per-(store, channel, customer) message thread.
// The natural key (store_id, channel, external_customer_id) carries a unique
// index so resolve-or-create can rely on an optimistic insert with conflict
// fallback instead of a read-then-insert race.
type Conversation struct {
	ID                 int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	StoreID            string         `json:"store_id" gorm:"column:store_id;uniqueIndex:idx_conversations_customer,priority:1"`
	Channel            string         `json:"channel" gorm:"column:channel;uniqueIndex:idx_conversations_customer,priority:2"`
	ExternalCustomerID string         `json:"external_customer_id" gorm:"column:external_customer_id;uniqueIndex:idx_conversations_customer,priority:3"`
	CustomerName       string         `json:"customer_name,omitempty" gorm:"column:customer_name"`
	CustomerPhone      string         `json:"customer_phone,omitempty" gorm:"column:customer_phone"`
	CustomerEmail      string         `json:"customer_email,omitempty" gorm:"column:customer_email"`
	LastMessage        string         `json:"last_message,omitempty" gorm:"column:last_message"`
	LastMessageAt      time.Time      `json:"last_message_at,omitempty" gorm:"column:last_message_at;index"`
	UnreadCount        int32          `json:"unread_count" gorm:"column:unread_count;default:0"`
	Status             string         `json:"status" gorm:"column:status;default:active"`
	AssignedTo         string         `json:"assigned_to,omitempty" gorm:"column:assigned_to"`
	Tags               datatypes.JSON `json:"tags,omitempty" gorm:"type:jsonb;column:tags"`
	CreatedAt          time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Conversation) TableName() string {
	return "conversations"
}

// ValidConversationStatus reports whether s is a known lifecycle status.
func ValidConversationStatus(s string) bool {
	switch s {
	case ConversationStatusActive, ConversationStatusResolved, ConversationStatusArchived:
		return true
	}
	return false
}

// ValidChannel reports whether c is a known channel type.
func ValidChannel(c string) bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram, ChannelGoogle, ChannelPOS, ChannelWeb:
		return true
	}
	return false
}
