// services/reward_service.go
package services

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"easyearn-backend/config"
	"easyearn-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardService owns the randomized reward engines (wheel, level case,
// streak case) and the user-facing dashboard snapshot. All three engines
// share one weighted-choice routine and apply their payouts through the
// ledger primitives.
type RewardService struct {
	DB  *gorm.DB
	Cfg *config.Config
	rng *rand.Rand
}

func NewRewardService(db *gorm.DB, cfg *config.Config) *RewardService {
	return &RewardService{
		DB:  db,
		Cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// --- Segment tables ---

var wheelSegments = []Segment{
	{ID: "wheel-5", Label: "$0.05", AmountCents: 5, ChancePermille: 400},
	{ID: "wheel-10", Label: "$0.10", AmountCents: 10, ChancePermille: 300},
	{ID: "wheel-25", Label: "$0.25", AmountCents: 25, ChancePermille: 180},
	{ID: "wheel-50", Label: "$0.50", AmountCents: 50, ChancePermille: 80},
	{ID: "wheel-100", Label: "$1.00", AmountCents: 100, ChancePermille: 30},
	{ID: "wheel-500", Label: "$5.00", AmountCents: 500, ChancePermille: 9},
	{ID: "wheel-2500", Label: "$25.00", AmountCents: 2500, ChancePermille: 1},
}

var levelCaseSegments = []Segment{
	{ID: "case-10", Label: "$0.10", AmountCents: 10, ChancePermille: 420},
	{ID: "case-25", Label: "$0.25", AmountCents: 25, ChancePermille: 300},
	{ID: "case-50", Label: "$0.50", AmountCents: 50, ChancePermille: 170},
	{ID: "case-100", Label: "$1.00", AmountCents: 100, ChancePermille: 80},
	{ID: "case-250", Label: "$2.50", AmountCents: 250, ChancePermille: 25},
	{ID: "case-1000", Label: "$10.00", AmountCents: 1000, ChancePermille: 5},
}

var streakCaseSegments = map[int][]Segment{
	7: {
		{ID: "streak7-25", Label: "$0.25", AmountCents: 25, ChancePermille: 500},
		{ID: "streak7-50", Label: "$0.50", AmountCents: 50, ChancePermille: 320},
		{ID: "streak7-100", Label: "$1.00", AmountCents: 100, ChancePermille: 150},
		{ID: "streak7-500", Label: "$5.00", AmountCents: 500, ChancePermille: 30},
	},
	14: {
		{ID: "streak14-50", Label: "$0.50", AmountCents: 50, ChancePermille: 450},
		{ID: "streak14-100", Label: "$1.00", AmountCents: 100, ChancePermille: 330},
		{ID: "streak14-250", Label: "$2.50", AmountCents: 250, ChancePermille: 170},
		{ID: "streak14-1000", Label: "$10.00", AmountCents: 1000, ChancePermille: 50},
	},
}

// Level thresholds: lifetime earned cents needed to sit at each level
// (index 0 = level 1). One level case key per level gained; VIPs get two
// bonus keys on top.
var levelThresholdsCents = []int64{0, 1000, 2500, 5000, 10000, 20000, 35000, 50000, 75000, 100000}

const vipBonusCaseKeys = 2

func LevelForLifetime(cents int64) int {
	level := 1
	for i, threshold := range levelThresholdsCents {
		if cents >= threshold {
			level = i + 1
		}
	}
	return level
}

const (
	wheelCooldown          = 24 * time.Hour
	wheelReferralWindow    = 14 * 24 * time.Hour
	wheelMinActiveReferral = 10
)

// SpinResult is the won segment plus the state the UI needs to refresh.
type SpinResult struct {
	Segment      Segment `json:"segment"`
	BalanceCents int64   `json:"balance_cents"`
}

// SpinWheel runs the wheel: eligibility gates and the reward application
// live in one transaction so a concurrent spin cannot double-collect.
func (s *RewardService) SpinWheel(userID string) (*SpinResult, error) {
	var result *SpinResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadActiveUser(tx, userID)
		if err != nil {
			return err
		}

		if !s.Cfg.WheelTestMode {
			var activeReferrals int64
			since := time.Now().UTC().Add(-wheelReferralWindow)
			if err := tx.Model(&models.User{}).
				Where("referred_by_id = ?", user.ID).
				Where("EXISTS (SELECT 1 FROM task_claims tc WHERE tc.user_id = users.id AND tc.claimed_at >= ?)", since).
				Count(&activeReferrals).Error; err != nil {
				return err
			}
			if activeReferrals < wheelMinActiveReferral {
				return ErrNotEnoughReferrals
			}

			// Conditional update is the cooldown lock: zero rows affected
			// means another spin won the race or the cooldown still runs.
			now := time.Now().UTC()
			cutoff := now.Add(-wheelCooldown)
			res := tx.Model(&models.User{}).
				Where("id = ? AND (wheel_last_spun_at IS NULL OR wheel_last_spun_at <= ?)", user.ID, cutoff).
				Update("wheel_last_spun_at", now)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrWheelCooldown
			}
		}
		// Test mode skips the gates and leaves the cooldown timestamp alone.

		segment := PickWeighted(wheelSegments, s.rng)
		desc := fmt.Sprintf("Wheel spin: %s", segment.Label)
		if err := creditUser(tx, user.ID, segment.AmountCents, models.TxnWheelSpin, desc, nil); err != nil {
			return err
		}

		var fresh models.User
		if err := tx.First(&fresh, "id = ?", user.ID).Error; err != nil {
			return err
		}
		result = &SpinResult{Segment: segment, BalanceCents: fresh.BalanceCents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LevelCaseKeys reports how many unopened level cases a user holds: one per
// level gained, plus the VIP bonus, minus cases already opened.
func (s *RewardService) LevelCaseKeys(tx *gorm.DB, user *models.User) (int, error) {
	var opened int64
	if err := tx.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", user.ID, models.TxnLevelCase).
		Count(&opened).Error; err != nil {
		return 0, err
	}
	keys := LevelForLifetime(user.LifetimeEarnedCents) - 1
	if user.IsVIP {
		keys += vipBonusCaseKeys
	}
	keys -= int(opened)
	if keys < 0 {
		keys = 0
	}
	return keys, nil
}

// OpenLevelCase spends one case key. Key availability is recounted inside
// the transaction; the LEVEL_CASE transaction row is itself the spend
// record, so two concurrent opens serialize on the user row update.
func (s *RewardService) OpenLevelCase(userID string) (*SpinResult, error) {
	var result *SpinResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadActiveUser(tx, userID)
		if err != nil {
			return err
		}
		keys, err := s.LevelCaseKeys(tx, user)
		if err != nil {
			return err
		}
		if keys <= 0 {
			return ErrNoCaseKeys
		}

		segment := PickWeighted(levelCaseSegments, s.rng)
		desc := fmt.Sprintf("Level case: %s", segment.Label)
		if err := creditUser(tx, user.ID, segment.AmountCents, models.TxnLevelCase, desc, nil); err != nil {
			return err
		}

		var fresh models.User
		if err := tx.First(&fresh, "id = ?", user.ID).Error; err != nil {
			return err
		}
		result = &SpinResult{Segment: segment, BalanceCents: fresh.BalanceCents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OpenStreakCase opens the 7- or 14-day milestone case for the current
// streak instance. The streak is recomputed from freshly read claims inside
// the same transaction that writes the StreakCaseOpen row, closing the race
// where a claim lands between check and commit; the composite unique index
// enforces one open per (user, streak start day, tier).
func (s *RewardService) OpenStreakCase(userID string, tier int) (*SpinResult, error) {
	segments, ok := streakCaseSegments[tier]
	if !ok {
		return nil, ErrInvalidTier
	}

	var result *SpinResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		user, err := loadActiveUser(tx, userID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var claims []models.TaskClaim
		if err := tx.
			Where("user_id = ? AND claimed_at >= ?", user.ID, now.AddDate(0, 0, -streakLookbackDays)).
			Find(&claims).Error; err != nil {
			return err
		}
		streak := ComputeStreak(claims, now)
		if streak.StreakDays == 0 || streak.StreakDays < tier {
			return ErrStreakTooShort
		}

		segment := PickWeighted(segments, s.rng)
		open := models.StreakCaseOpen{
			ID:               uuid.NewString(),
			UserID:           user.ID,
			StreakStartDay:   streak.StreakStartDay,
			Tier:             tier,
			StreakDaysAtOpen: streak.StreakDays,
			AmountCents:      segment.AmountCents,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "streak_start_day"}, {Name: "tier"}},
			DoNothing: true,
		}).Create(&open)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCaseNotAvailable
		}

		desc := fmt.Sprintf("%d-day streak case: %s", tier, segment.Label)
		if err := creditUser(tx, user.ID, segment.AmountCents, models.TxnStreakCase, desc, nil); err != nil {
			return err
		}

		var fresh models.User
		if err := tx.First(&fresh, "id = ?", user.ID).Error; err != nil {
			return err
		}
		result = &SpinResult{Segment: segment, BalanceCents: fresh.BalanceCents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseDuePending runs the hold-expiry sweep for one user. Called on
// dashboard load and by the background sweeper; both share the guarded
// per-claim release, so overlapping runs are safe.
func (s *RewardService) ReleaseDuePending(userID string) (int, error) {
	released := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		released, err = releaseDueForUser(tx, userID, time.Now().UTC())
		return err
	})
	return released, err
}

// PendingClaimView is a held claim with its countdown label.
type PendingClaimView struct {
	TaskKey      string    `json:"task_key"`
	OfferTitle   string    `json:"offer_title"`
	PayoutCents  int64     `json:"payout_cents"`
	PendingUntil time.Time `json:"pending_until"`
	Countdown    string    `json:"countdown"`
}

// Dashboard assembles the user snapshot: releases due holds first, then
// reads balance, pending claims, streak state and reward availability.
func (s *RewardService) Dashboard(userID string) (map[string]interface{}, error) {
	if _, err := s.ReleaseDuePending(userID); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	var pending []models.TaskClaim
	if err := s.DB.
		Where("user_id = ? AND credited_at IS NULL AND pending_until IS NOT NULL", userID).
		Order("pending_until ASC").
		Find(&pending).Error; err != nil {
		return nil, err
	}
	pendingViews := make([]PendingClaimView, 0, len(pending))
	var pendingCents int64
	for _, c := range pending {
		pendingCents += c.PayoutCents
		pendingViews = append(pendingViews, PendingClaimView{
			TaskKey:      c.TaskKey,
			OfferTitle:   c.OfferTitle,
			PayoutCents:  c.PayoutCents,
			PendingUntil: *c.PendingUntil,
			Countdown:    FormatCountdown(*c.PendingUntil, now),
		})
	}

	var claims []models.TaskClaim
	if err := s.DB.
		Where("user_id = ? AND claimed_at >= ?", userID, now.AddDate(0, 0, -streakLookbackDays)).
		Find(&claims).Error; err != nil {
		return nil, err
	}
	streak := ComputeStreak(claims, now)

	keys := 0
	if err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		keys, err = s.LevelCaseKeys(tx, &user)
		return err
	}); err != nil {
		return nil, err
	}

	wheelAvailableAt := now
	if user.WheelLastSpunAt != nil {
		wheelAvailableAt = user.WheelLastSpunAt.Add(wheelCooldown)
	}

	return map[string]interface{}{
		"balance_cents":         user.BalanceCents,
		"lifetime_earned_cents": user.LifetimeEarnedCents,
		"level":                 LevelForLifetime(user.LifetimeEarnedCents),
		"pending_cents":         pendingCents,
		"pending_claims":        pendingViews,
		"streak":                streak,
		"level_case_keys":       keys,
		"wheel_available_at":    wheelAvailableAt,
	}, nil
}

// loadActiveUser fetches a user inside tx and enforces the status gate every
// reward path shares.
func loadActiveUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrUserNotActive
	}
	return &user, nil
}
