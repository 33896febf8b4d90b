// services/ledger.go
package services

import (
	"time"

	"easyearn-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger primitives. Every balance-affecting mutation goes through one of
// these, inside the caller's transaction, so the User row update and the
// Transaction row insert commit together or not at all. Balance guards are
// conditional UPDATEs, never read-modify-write.

// creditUser adds amountCents to balance and lifetime earned and appends the
// paired Transaction row.
func creditUser(tx *gorm.DB, userID string, amountCents int64, txnType models.TransactionType, desc string, sourceUserID *string) error {
	res := tx.Exec(
		`UPDATE users SET balance_cents = balance_cents + ?, lifetime_earned_cents = lifetime_earned_cents + ?, updated_at = ? WHERE id = ?`,
		amountCents, amountCents, time.Now(), userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return appendTransaction(tx, userID, txnType, amountCents, desc, sourceUserID)
}

// creditBalanceOnly adds to balance without touching lifetime earned
// (withdrawal refunds: the money was earned once already).
func creditBalanceOnly(tx *gorm.DB, userID string, amountCents int64, txnType models.TransactionType, desc string) error {
	res := tx.Exec(
		`UPDATE users SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ?`,
		amountCents, time.Now(), userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return appendTransaction(tx, userID, txnType, amountCents, desc, nil)
}

// debitUserStrict removes amountCents from balance, rejecting with
// ErrInsufficientBalance when the guard does not match. Used by spend paths
// (withdrawals), where underfunded requests must fail loudly.
func debitUserStrict(tx *gorm.DB, userID string, amountCents int64, txnType models.TransactionType, desc string) error {
	res := tx.Exec(
		`UPDATE users SET balance_cents = balance_cents - ?, updated_at = ? WHERE id = ? AND balance_cents >= ?`,
		amountCents, time.Now(), userID, amountCents,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return appendTransaction(tx, userID, txnType, -amountCents, desc, nil)
}

// debitUserClamped removes min(balance, amountCents) from balance and the
// same clamped amount from lifetime earned. Used by reversals: the user may
// already have spent or withdrawn the payout, and the balance must end at
// zero, never below. The recorded Transaction carries the full original
// amount regardless of the clamp, so the audit trail matches the provider's
// retraction.
func debitUserClamped(tx *gorm.DB, userID string, amountCents int64, txnType models.TransactionType, desc string) error {
	res := tx.Exec(
		`UPDATE users SET balance_cents = balance_cents - ?,
			lifetime_earned_cents = CASE WHEN lifetime_earned_cents >= ? THEN lifetime_earned_cents - ? ELSE 0 END,
			updated_at = ?
		 WHERE id = ? AND balance_cents >= ?`,
		amountCents, amountCents, amountCents, time.Now(), userID, amountCents,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Not enough balance left: take everything that remains. SET
		// expressions evaluate against pre-update values, so lifetime is
		// reduced by the same clamped amount the balance loses.
		res = tx.Exec(
			`UPDATE users SET
				lifetime_earned_cents = CASE WHEN lifetime_earned_cents >= balance_cents THEN lifetime_earned_cents - balance_cents ELSE 0 END,
				balance_cents = 0,
				updated_at = ?
			 WHERE id = ?`,
			time.Now(), userID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
	}
	return appendTransaction(tx, userID, txnType, -amountCents, desc, nil)
}

// appendTransaction writes one audit-trail row. Append-only: nothing in this
// codebase updates or deletes transactions.
func appendTransaction(tx *gorm.DB, userID string, txnType models.TransactionType, amountCents int64, desc string, sourceUserID *string) error {
	return tx.Create(&models.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         txnType,
		AmountCents:  amountCents,
		Description:  desc,
		SourceUserID: sourceUserID,
	}).Error
}
