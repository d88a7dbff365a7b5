package model

import (
	"time"

	"gorm.io/datatypes"
)

// Sender roles for a message.
const (
	SenderTypeCustomer = "customer"
	SenderTypeAgent    = "agent"
	SenderTypeBot      = "bot"
)

// Message kinds the provider can deliver.
const (
	MessageKindText     = "text"
	MessageKindImage    = "image"
	MessageKindAudio    = "audio"
	MessageKindVideo    = "video"
	MessageKindDocument = "document"
	MessageKindLocation = "location"
)

// Delivery status of a message.
const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Message is a single entry in a conversation. Inbound messages carry the
// provider's external id, which is the deduplication key: the unique index on
// external_id makes re-delivery an insert conflict rather than a duplicate
// row. Outbound messages have no external id (NULLs do not collide).
type Message struct {
	ID             int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationID int64          `json:"conversation_id" gorm:"column:conversation_id;index:idx_messages_conversation"`
	StoreID        string         `json:"store_id" gorm:"column:store_id;index"`
	ExternalID     *string        `json:"external_id,omitempty" gorm:"column:external_id;uniqueIndex:idx_messages_external_id"`
	SenderID       string         `json:"sender_id" gorm:"column:sender_id"`
	SenderType     string         `json:"sender_type" gorm:"column:sender_type"`
	Kind           string         `json:"kind" gorm:"column:kind"`
	Content        string         `json:"content" gorm:"column:content"`
	MediaRef       string         `json:"media_ref,omitempty" gorm:"column:media_ref"`
	Metadata       datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;column:metadata"`
	Status         string         `json:"status" gorm:"column:status"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// MessageMetadata holds the kind-specific payload details. Only the fields
// relevant to the kind are populated.
type MessageMetadata struct {
	MimeType  string   `json:"mimeType,omitempty"`
	FileName  string   `json:"fileName,omitempty"`
	FileSize  int64    `json:"fileSize,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// IsEmpty reports whether no metadata field is set.
func (m MessageMetadata) IsEmpty() bool {
	return m.MimeType == "" && m.FileName == "" && m.FileSize == 0 &&
		m.Latitude == nil && m.Longitude == nil
}
