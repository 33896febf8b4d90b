// services/pending.go
package services

import (
	"fmt"
	"time"

	"easyearn-backend/models"

	"gorm.io/gorm"
)

// Pending-hold policy: larger payouts sit in review before the balance is
// touched. Tiers are in cents of payout.
const (
	instantMaxCents   = 300
	shortHoldMaxCents = 700
	shortHoldDays     = 14
	longHoldDays      = 30
)

// HoldDaysFor maps a payout amount to its review hold in days.
func HoldDaysFor(amountCents int64) int {
	switch {
	case amountCents <= instantMaxCents:
		return 0
	case amountCents <= shortHoldMaxCents:
		return shortHoldDays
	default:
		return longHoldDays
	}
}

// FormatCountdown renders remaining hold time as whole days + hours,
// rounding up to the next hour so the label never reads "0d 0h" while time
// remains.
func FormatCountdown(until, now time.Time) string {
	remaining := until.Sub(now)
	if remaining <= 0 {
		return "releasing soon"
	}
	hours := int((remaining + time.Hour - 1) / time.Hour)
	days := hours / 24
	hours = hours % 24
	if days > 0 {
		return fmt.Sprintf("%dd %dh left", days, hours)
	}
	return fmt.Sprintf("%dh left", hours)
}

// releaseDueForUser releases every claim of one user whose hold expired:
// marks it credited, applies the payout, and appends an EARN_RELEASE row.
// Runs inside the caller's transaction. The conditional credited_at guard
// makes redundant or concurrent sweeps a no-op per claim. A release that
// carries the user across the referral qualifying threshold awards the
// referrer's bonus the same way an instant credit would.
func releaseDueForUser(tx *gorm.DB, userID string, now time.Time) (int, error) {
	var due []models.TaskClaim
	if err := tx.
		Where("user_id = ? AND credited_at IS NULL AND pending_until IS NOT NULL AND pending_until <= ?", userID, now).
		Find(&due).Error; err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return 0, err
	}

	released := 0
	for _, claim := range due {
		res := tx.Model(&models.TaskClaim{}).
			Where("id = ? AND credited_at IS NULL", claim.ID).
			Update("credited_at", now)
		if res.Error != nil {
			return released, res.Error
		}
		if res.RowsAffected == 0 {
			continue // another sweep got here first
		}
		desc := fmt.Sprintf("Released hold: %s", claim.OfferTitle)
		if claim.OfferTitle == "" {
			desc = fmt.Sprintf("Released hold: %s", claim.TaskKey)
		}
		if err := creditUser(tx, userID, claim.PayoutCents, models.TxnEarnRelease, desc, nil); err != nil {
			return released, err
		}
		if err := maybeAwardReferralBonus(tx, &user, claim.PayoutCents); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}
