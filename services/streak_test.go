package services

import (
	"testing"
	"time"

	"easyearn-backend/models"
)

// claimOn fabricates one claim worth amountCents on the UTC day offset
// (0 = today, -1 = yesterday, ...) relative to now.
func claimOn(now time.Time, dayOffset int, amountCents int64) models.TaskClaim {
	day := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, dayOffset)
	return models.TaskClaim{
		UserID:      "u",
		TaskKey:     "k",
		PayoutCents: amountCents,
		ClaimedAt:   day.Add(3 * time.Hour),
	}
}

func TestStreakSevenDaysEndingYesterday(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	var claims []models.TaskClaim
	for d := -7; d <= -1; d++ {
		claims = append(claims, claimOn(now, d, 250))
	}

	state := ComputeStreak(claims, now)
	if state.StreakDays != 7 {
		t.Errorf("streak days: got %d, want 7", state.StreakDays)
	}
	if !state.CanKeepToday {
		t.Error("canKeepToday must be true while today is still open")
	}
	if state.TodayQualifies {
		t.Error("today must not qualify with no claims today")
	}
	wantStart := now.Truncate(24 * time.Hour).AddDate(0, 0, -7).Format(dayFormat)
	if state.StreakStartDay != wantStart {
		t.Errorf("streak start: got %s, want %s", state.StreakStartDay, wantStart)
	}
	if state.NextMilestone != 14 || state.DaysToNextMilestone != 7 {
		t.Errorf("milestone: got %d in %d, want 14 in 7", state.NextMilestone, state.DaysToNextMilestone)
	}
}

func TestStreakTodayAlreadySatisfied(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	var claims []models.TaskClaim
	for d := -7; d <= 0; d++ {
		claims = append(claims, claimOn(now, d, 250))
	}

	state := ComputeStreak(claims, now)
	if state.StreakDays != 8 {
		t.Errorf("streak days: got %d, want 8", state.StreakDays)
	}
	if state.CanKeepToday {
		t.Error("canKeepToday must be false once today already qualifies")
	}
}

func TestStreakBrokenByGap(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	claims := []models.TaskClaim{
		claimOn(now, -4, 300),
		claimOn(now, -3, 300),
		// gap at -2
		// nothing yesterday, nothing today
	}

	state := ComputeStreak(claims, now)
	if state.StreakDays != 0 {
		t.Errorf("streak days: got %d, want 0 (no qualifying anchor)", state.StreakDays)
	}
	if state.CanKeepToday {
		t.Error("nothing to keep without an active streak")
	}
	if state.StreakStartDay != "" {
		t.Errorf("no streak start expected, got %s", state.StreakStartDay)
	}
}

func TestStreakDayBelowTargetBreaksRun(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	claims := []models.TaskClaim{
		claimOn(now, -3, 500),
		claimOn(now, -2, 150), // below the 200-cent daily target
		claimOn(now, -1, 500),
	}

	state := ComputeStreak(claims, now)
	if state.StreakDays != 1 {
		t.Errorf("streak days: got %d, want 1", state.StreakDays)
	}
}

func TestStreakSumsMultipleClaimsPerDay(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	claims := []models.TaskClaim{
		claimOn(now, -1, 120),
		claimOn(now, -1, 90), // 210 total qualifies
	}

	state := ComputeStreak(claims, now)
	if state.StreakDays != 1 {
		t.Errorf("streak days: got %d, want 1", state.StreakDays)
	}
	if !state.CanKeepToday {
		t.Error("single-day streak ending yesterday should be keepable today")
	}
}

func TestStreakIgnoresClaimsBeyondLookback(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	claims := []models.TaskClaim{
		claimOn(now, -(streakLookbackDays + 5), 10000),
	}

	state := ComputeStreak(claims, now)
	if state.StreakDays != 0 {
		t.Errorf("claims outside the lookback window must not count, got %d days", state.StreakDays)
	}
}
