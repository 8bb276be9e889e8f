package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign represents a multi-step cold outreach campaign
type Campaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:false;index" json:"is_active"`

	// Scheduling
	Timezone          string `gorm:"default:'UTC'" json:"timezone"`
	SendingStart      string `gorm:"default:'09:00'" json:"sending_start"` // HH:MM in campaign timezone
	SendingEnd        string `gorm:"default:'17:00'" json:"sending_end"`
	SendingDays       []int  `gorm:"type:jsonb;serializer:json" json:"sending_days"` // 0=Sunday .. 6=Saturday
	EmailDelaySeconds int    `gorm:"default:60" json:"email_delay_seconds"`

	// Tracking settings
	TrackOpens      bool `gorm:"default:true" json:"track_opens"`
	TrackClicks     bool `gorm:"default:true" json:"track_clicks"`
	UnsubscribeLink bool `gorm:"default:true" json:"unsubscribe_link"`

	// Statistics (denormalized for performance)
	SentCount        int `gorm:"default:0" json:"sent_count"`
	DeliveredCount   int `gorm:"default:0" json:"delivered_count"`
	OpenCount        int `gorm:"default:0" json:"open_count"`
	ClickCount       int `gorm:"default:0" json:"click_count"`
	ReplyCount       int `gorm:"default:0" json:"reply_count"`
	BounceCount      int `gorm:"default:0" json:"bounce_count"`
	UnsubscribeCount int `gorm:"default:0" json:"unsubscribe_count"`
	ComplaintCount   int `gorm:"default:0" json:"complaint_count"`

	// Relations
	Steps    []SequenceStep `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
	Accounts []EmailAccount `gorm:"many2many:campaign_accounts" json:"accounts,omitempty"`
	Contacts []Contact      `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
}

// SequenceStep is one email in a campaign's ordered outreach plan.
// Exactly one of Subject/AiSubjectPrompt carries the step's subject depending
// on UseAiForSubject, and likewise for Content/AiContentPrompt.
type SequenceStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepNumber int  `gorm:"not null" json:"step_number" validate:"min=1"` // 1-based execution order
	DelayDays  int  `gorm:"not null;default:0" json:"delay_days" validate:"min=0"`
	IsActive   bool `gorm:"default:true" json:"is_active"`

	Subject string `json:"subject"`
	Content string `gorm:"type:text" json:"content"`

	UseAiForSubject bool   `gorm:"default:false" json:"use_ai_for_subject"`
	AiSubjectPrompt string `gorm:"type:text" json:"ai_subject_prompt"`
	UseAiForContent bool   `gorm:"default:false" json:"use_ai_for_content"`
	AiContentPrompt string `gorm:"type:text" json:"ai_content_prompt"`
}

// PersonalizationLog records every subject/content render for auditing AI usage
type PersonalizationLog struct {
	gorm.Model
	UserID     uint `gorm:"not null;index" json:"user_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`

	StepNumber int    `json:"step_number"`
	Kind       string `gorm:"not null" json:"kind"`     // subject, content
	Provider   string `gorm:"not null" json:"provider"` // openai, deepseek, manual
	AiModel    string `json:"ai_model"`

	Prompt      string        `gorm:"type:text" json:"prompt"`
	Result      string        `gorm:"type:text" json:"result"`
	UsedWebsite bool          `json:"used_website"`
	Processing  time.Duration `json:"processing"`
}
