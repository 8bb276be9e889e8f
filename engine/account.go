package engine

import (
	"context"
	"time"

	"gorm.io/gorm"

	"coldreach/models"
)

// PickAccount chooses the sending account for the next message: the
// least recently used active account that still has quota left. Returns
// nil when the whole pool is exhausted.
func PickAccount(accounts []*models.EmailAccount) *models.EmailAccount {
	var pick *models.EmailAccount
	for _, a := range accounts {
		if !a.IsActive || a.RemainingToday() == 0 {
			continue
		}
		if pick == nil {
			pick = a
			continue
		}
		switch {
		case a.LastUsed == nil && pick.LastUsed != nil:
			pick = a
		case a.LastUsed != nil && pick.LastUsed != nil && a.LastUsed.Before(*pick.LastUsed):
			pick = a
		}
	}
	return pick
}

// ResetDailyCounters zeroes sent_today for every account whose counter
// belongs to a previous UTC day. The WHERE guard makes the reset
// idempotent across concurrent ticks.
func ResetDailyCounters(ctx context.Context, db *gorm.DB, now time.Time) error {
	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("last_reset_date IS NULL OR last_reset_date < ?", today).
		Updates(map[string]interface{}{
			"sent_today":      0,
			"last_reset_date": today,
		}).Error
}

// ClaimQuota atomically reserves one send against the account's daily
// limit. Returns false when the limit is already reached.
func ClaimQuota(ctx context.Context, db *gorm.DB, accountID uint, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ? AND sent_today < daily_limit", accountID).
		Updates(map[string]interface{}{
			"sent_today": gorm.Expr("sent_today + ?", 1),
			"last_used":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseQuota undoes a claim after a transport failure so a failed
// attempt does not burn the account's budget.
func ReleaseQuota(ctx context.Context, db *gorm.DB, accountID uint) error {
	return db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ? AND sent_today > 0", accountID).
		Update("sent_today", gorm.Expr("sent_today - ?", 1)).Error
}
