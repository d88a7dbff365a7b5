package model

import (
	"time"
)

// ChannelConfig stores a tenant's provider credentials for one channel.
// For WhatsApp this is the Meta Business phone number id, the Graph API access
// token and the per-tenant verify token. The phone number id is indexed so the
// webhook gateway can attribute a delivery to the owning store.
type ChannelConfig struct {
	ID            int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	StoreID       string    `json:"store_id" gorm:"column:store_id;uniqueIndex:idx_channel_configs_store,priority:1"`
	Channel       string    `json:"channel" gorm:"column:channel;uniqueIndex:idx_channel_configs_store,priority:2"`
	PhoneNumberID string    `json:"phone_number_id,omitempty" gorm:"column:phone_number_id;index"`
	AccessToken   string    `json:"-" gorm:"column:access_token"`
	VerifyToken   string    `json:"-" gorm:"column:verify_token"`
	IsActive      bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (ChannelConfig) TableName() string {
	return "channel_configs"
}

// GetUpdatableFields returns the column names that may change on an
// ON CONFLICT upsert. Excludes the primary key, the conflict target and
// created_at.
func (c *ChannelConfig) GetUpdatableFields() []string {
	return []string{
		"phone_number_id", "access_token", "verify_token", "is_active", "updated_at",
	}
}
