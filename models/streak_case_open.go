package models

import "time"

// StreakCaseOpen marks a milestone case already claimed for one specific
// streak instance. StreakStartDay (UTC, "2006-01-02") is the streak's
// identity: re-qualifying for the same tier only becomes possible after the
// streak resets and a new start day exists. The composite unique index is
// the single-claim guard.
type StreakCaseOpen struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string    `gorm:"not null;uniqueIndex:idx_streak_case_once" json:"user_id"`
	StreakStartDay   string    `gorm:"not null;uniqueIndex:idx_streak_case_once" json:"streak_start_day"`
	Tier             int       `gorm:"not null;uniqueIndex:idx_streak_case_once" json:"tier"` // 7 or 14
	StreakDaysAtOpen int       `gorm:"not null" json:"streak_days_at_open"`
	AmountCents      int64     `gorm:"not null" json:"amount_cents"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
