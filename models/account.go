package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// EmailAccount holds the SMTP/IMAP connection settings for one sending
// identity. Passwords are stored AES-encrypted; OAuth accounts keep a
// refresh token instead and authenticate with XOAUTH2.
type EmailAccount struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name      string `json:"name"`
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FromName  string `json:"from_name"`
	IsActive  bool   `gorm:"default:true;index" json:"is_active"`

	// SMTP
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `gorm:"default:587" json:"smtp_port"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"-"` // encrypted at rest
	SMTPEncryption string `gorm:"default:'tls'" json:"smtp_encryption"` // ssl, tls, none

	// IMAP
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `gorm:"default:993" json:"imap_port"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // encrypted at rest
	IMAPEncryption string `gorm:"default:'ssl'" json:"imap_encryption"`
	IMAPMailbox    string `gorm:"default:'INBOX'" json:"imap_mailbox"`

	// OAuth (gmail, outlook); empty ProviderType means plain password auth
	ProviderType      string `gorm:"default:''" json:"provider_type"`
	OAuthRefreshToken string `json:"-"` // encrypted at rest

	// Quota
	DailyLimit    int        `gorm:"default:50" json:"daily_limit"`
	SentToday     int        `gorm:"default:0" json:"sent_today"`
	LastResetDate *time.Time `json:"last_reset_date"`
	LastUsed      *time.Time `json:"last_used"`

	LastPolledAt      *time.Time `json:"last_polled_at"`
	LastHealthCheckAt *time.Time `json:"last_health_check_at"`
}

// UsesOAuth reports whether the account authenticates with XOAUTH2.
func (a *EmailAccount) UsesOAuth() bool {
	return a.ProviderType == "gmail" || a.ProviderType == "outlook"
}

// Domain returns the part of the account address after the @.
func (a *EmailAccount) Domain() string {
	if i := strings.LastIndex(a.Email, "@"); i >= 0 {
		return a.Email[i+1:]
	}
	return ""
}

// RemainingToday returns how many sends the account has left before its
// daily limit, assuming counters were reset for the current day.
func (a *EmailAccount) RemainingToday() int {
	if r := a.DailyLimit - a.SentToday; r > 0 {
		return r
	}
	return 0
}

// NeedsDailyReset reports whether SentToday belongs to a previous UTC day.
func (a *EmailAccount) NeedsDailyReset(now time.Time) bool {
	if a.LastResetDate == nil {
		return true
	}
	y1, m1, d1 := a.LastResetDate.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}
