package models

import "time"

// Business is a tenant: one registered WhatsApp number plus the media assets
// used to render its video replies.
type Business struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string `gorm:"type:varchar(255);not null" json:"name"`
	WhatsAppNumber string `gorm:"column:whatsapp_number;type:varchar(20);uniqueIndex;not null" json:"whatsapp_number"`
	OwnerName      string `gorm:"type:varchar(255)" json:"owner_name"`
	BusinessType   string `gorm:"type:varchar(100)" json:"business_type"`

	// Media assets for video generation. VoiceSampleURL holds either a stored
	// sample path or a cloned voice id from the voice provider.
	VoiceSampleURL string `gorm:"type:varchar(500)" json:"-"`
	AvatarImageURL string `gorm:"type:varchar(500)" json:"-"`
	PasswordHash   string `gorm:"type:varchar(255)" json:"-"`

	ResponseStyle string `gorm:"type:varchar(50);default:professional" json:"response_style"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Business) TableName() string { return "businesses" }

// Customer is created lazily on first inbound message, scoped to one tenant.
type Customer struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	PhoneNumber string `gorm:"type:varchar(20);not null;index:uniq_customer_phone_biz,unique,priority:1" json:"phone_number"`
	BusinessID  uint64 `gorm:"not null;index:uniq_customer_phone_biz,unique,priority:2" json:"business_id"`
	Name        string `gorm:"type:varchar(255)" json:"name"`

	CreatedAt time.Time `json:"created_at"`
}

func (Customer) TableName() string { return "customers" }
