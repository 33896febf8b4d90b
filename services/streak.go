// services/streak.go
package services

import (
	"time"

	"easyearn-backend/models"
)

// Streak engine: the consecutive-qualifying-day streak is never persisted,
// always recomputed from raw claim history. That makes it safe to run the
// same function for display and again inside a case-opening transaction with
// freshly read claims.
const (
	streakLookbackDays     = 400
	streakDailyTargetCents = 200
)

const dayFormat = "2006-01-02"

// StreakState is the derived streak for one user at one instant.
type StreakState struct {
	StreakDays          int    `json:"streak_days"`
	StreakStartDay      string `json:"streak_start_day,omitempty"` // identity for milestone dedup
	TodayCents          int64  `json:"today_cents"`
	TodayQualifies      bool   `json:"today_qualifies"`
	CanKeepToday        bool   `json:"can_keep_today"`
	NextMilestone       int    `json:"next_milestone,omitempty"`
	DaysToNextMilestone int    `json:"days_to_next_milestone,omitempty"`
}

// ComputeStreak buckets claims by UTC calendar day, finds the anchor (today
// if it qualifies, else yesterday), and walks backward while each day meets
// the daily target.
func ComputeStreak(claims []models.TaskClaim, now time.Time) StreakState {
	now = now.UTC()
	cutoff := now.AddDate(0, 0, -streakLookbackDays)

	byDay := make(map[string]int64)
	for _, c := range claims {
		if c.ClaimedAt.Before(cutoff) {
			continue
		}
		byDay[c.ClaimedAt.UTC().Format(dayFormat)] += c.PayoutCents
	}

	today := now.Truncate(24 * time.Hour)
	todayKey := today.Format(dayFormat)
	yesterday := today.AddDate(0, 0, -1)

	state := StreakState{TodayCents: byDay[todayKey]}
	state.TodayQualifies = byDay[todayKey] >= streakDailyTargetCents
	yesterdayQualifies := byDay[yesterday.Format(dayFormat)] >= streakDailyTargetCents

	var anchor time.Time
	switch {
	case state.TodayQualifies:
		anchor = today
	case yesterdayQualifies:
		anchor = yesterday
	default:
		return state // no active streak
	}

	day := anchor
	for byDay[day.Format(dayFormat)] >= streakDailyTargetCents {
		state.StreakDays++
		day = day.AddDate(0, 0, -1)
	}
	state.StreakStartDay = day.AddDate(0, 0, 1).Format(dayFormat)

	// There is something to lose only while today is still open.
	state.CanKeepToday = !state.TodayQualifies && yesterdayQualifies && state.StreakDays > 0

	switch {
	case state.StreakDays < 7:
		state.NextMilestone = 7
	case state.StreakDays < 14:
		state.NextMilestone = 14
	}
	if state.NextMilestone > 0 {
		state.DaysToNextMilestone = state.NextMilestone - state.StreakDays
	}
	return state
}
