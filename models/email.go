package models

import (
	"time"

	"gorm.io/gorm"
)

// SentEmail is the permanent log of one outbound message. MessageID is the
// value written into the Message-ID header, used later to match replies.
type SentEmail struct {
	gorm.Model
	UserID     uint `gorm:"not null;index" json:"user_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`
	AccountID  uint `gorm:"not null;index" json:"account_id"`

	StepNumber int    `gorm:"not null" json:"step_number"`
	MessageID  string `gorm:"not null;uniqueIndex" json:"message_id"`
	ThreadID   string `gorm:"index" json:"thread_id"`

	ToEmail string `gorm:"not null" json:"to_email"`
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	Status       string     `gorm:"default:'sent';index" json:"status"` // sent, failed, bounced
	ErrorMessage string     `json:"error_message"`
	SentAt       time.Time  `gorm:"index" json:"sent_at"`
	OpenedAt     *time.Time `json:"opened_at"`
	ClickedAt    *time.Time `json:"clicked_at"`
	RepliedAt    *time.Time `json:"replied_at"`

	OpenCount  int `gorm:"default:0" json:"open_count"`
	ClickCount int `gorm:"default:0" json:"click_count"`

	Contact Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// ReceivedEmail is one inbound message fetched from an account's mailbox.
// SentEmailID links it to the outbound message it replies to, when matched.
type ReceivedEmail struct {
	gorm.Model
	UserID    uint `gorm:"not null;index" json:"user_id"`
	AccountID uint `gorm:"not null;index:idx_received_msg_account,unique" json:"account_id"`

	CampaignID  *uint `gorm:"index" json:"campaign_id"`
	ContactID   *uint `gorm:"index" json:"contact_id"`
	SentEmailID *uint `gorm:"index" json:"sent_email_id"`

	MessageID  string `gorm:"not null;index:idx_received_msg_account,unique" json:"message_id"`
	ThreadID   string `gorm:"index" json:"thread_id"`
	InReplyTo  string `json:"in_reply_to"`
	References string `gorm:"type:text" json:"references"`

	FromEmail string `gorm:"not null;index" json:"from_email"`
	FromName  string `json:"from_name"`
	ToEmail   string `json:"to_email"`
	Subject   string `json:"subject"`
	BodyText  string `gorm:"type:text" json:"body_text"`
	BodyHTML  string `gorm:"type:text" json:"body_html"`

	Attachments []EmailAttachment `gorm:"type:jsonb;serializer:json" json:"attachments"`

	IsReply   bool      `gorm:"default:false;index" json:"is_reply"`
	IsIgnored bool      `gorm:"default:false" json:"is_ignored"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	IsStarred bool      `gorm:"default:false" json:"is_starred"`
	Category  string    `gorm:"default:'inbox'" json:"category"` // inbox, spam, trash, archive
	ReceivedAt time.Time `gorm:"index" json:"received_at"`
}

// EmailAttachment is attachment metadata only; bodies are not stored.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}
