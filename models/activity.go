package models

import (
	"gorm.io/gorm"
)

// ActivityLog is one row of the user-visible activity feed.
type ActivityLog struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Source  string `gorm:"not null;index" json:"source"` // send, receive
	Level   string `gorm:"not null" json:"level"`        // info, success, warning, error
	Message string `gorm:"not null;type:text" json:"message"`

	CampaignID *uint          `gorm:"index" json:"campaign_id"`
	ContactID  *uint          `json:"contact_id"`
	AccountID  *uint          `json:"account_id"`
	Metadata   map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata"`
}

// LogActivity inserts an activity feed row. Failures are swallowed; the
// feed must never break a send or receive path.
func LogActivity(db *gorm.DB, entry ActivityLog) {
	_ = db.Create(&entry).Error
}
