package convo

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Conversation is one customer message and its full response lifecycle.
// Rows are created by the webhook intake at "pending" and mutated only by the
// pipeline worker afterwards; they are never deleted.
type Conversation struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	BusinessID uint64 `gorm:"not null;index" json:"business_id"`
	CustomerID uint64 `gorm:"not null;index" json:"customer_id"`

	MessageFromCustomer string `gorm:"type:text;not null" json:"message_from_customer"`

	// Filled stage by stage while processing.
	AIResponseText string `gorm:"type:text" json:"ai_response_text"`
	AudioURL       string `gorm:"type:varchar(500)" json:"audio_url"`
	VideoURL       string `gorm:"type:varchar(500)" json:"video_url"`

	Status       Status  `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	ErrorMessage *string `gorm:"type:text" json:"error_message"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SentAt    *time.Time `json:"sent_at"`
}

func (Conversation) TableName() string { return "conversations" }
