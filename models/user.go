package models

import (
	"strings"

	"gorm.io/gorm"
)

// User owns campaigns, accounts, and contacts. Only the settings the
// engine reads live here; auth and profile data are out of scope.
type User struct {
	gorm.Model
	Email    string `gorm:"not null;uniqueIndex" json:"email"`
	Name     string `json:"name"`
	Timezone string `gorm:"default:'UTC'" json:"timezone"`

	// Reply handling
	IgnoreKeywords  string `gorm:"type:text" json:"ignore_keywords"` // comma-separated, case-insensitive
	EmailCheckDelay int    `gorm:"default:300" json:"email_check_delay"` // seconds between inbox polls

	// Personalization provider settings
	AIProvider     string `gorm:"default:'openai'" json:"ai_provider"` // openai, deepseek
	OpenAIKey      string `json:"-"` // encrypted at rest
	DeepSeekKey    string `json:"-"` // encrypted at rest
	AIModel        string `json:"ai_model"`
}

// IgnoreKeywordList splits the stored comma-separated keywords, trimming
// whitespace and dropping empties.
func (u *User) IgnoreKeywordList() []string {
	if u.IgnoreKeywords == "" {
		return nil
	}
	parts := strings.Split(u.IgnoreKeywords, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.TrimSpace(p); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
