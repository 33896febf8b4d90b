// services/withdrawal_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"easyearn-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WithdrawalService cashes balance out to PayPal or gift cards. The debit is
// strict: an underfunded request is rejected, never clamped. Notifications
// happen after commit only, so a slow mail hop can never hold a lock on the
// user row.
type WithdrawalService struct {
	DB *gorm.DB
}

func NewWithdrawalService(db *gorm.DB) *WithdrawalService {
	return &WithdrawalService{DB: db}
}

const minWithdrawalCents = 1000

// RequestWithdrawal debits the balance and opens a PENDING withdrawal in one
// transaction.
func (s *WithdrawalService) RequestWithdrawal(userID string, method models.WithdrawalMethod, destination string, amountCents int64) (*models.Withdrawal, error) {
	if amountCents < minWithdrawalCents {
		return nil, ErrInvalidAmount
	}
	if method != models.WithdrawalMethodPayPal && method != models.WithdrawalMethodGiftCard {
		return nil, ErrInvalidAmount
	}
	if destination == "" {
		return nil, ErrMissingParams
	}

	withdrawal := &models.Withdrawal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Method:      method,
		Destination: destination,
		AmountCents: amountCents,
		Status:      models.WithdrawalStatusPending,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := loadActiveUser(tx, userID); err != nil {
			return err
		}
		desc := fmt.Sprintf("Withdrawal to %s (%s)", method, destination)
		if err := debitUserStrict(tx, userID, amountCents, models.TxnWithdrawal, desc); err != nil {
			return err
		}
		if err := tx.Exec(
			`UPDATE users SET total_withdrawn_cents = total_withdrawn_cents + ? WHERE id = ?`,
			amountCents, userID,
		).Error; err != nil {
			return err
		}
		return tx.Create(withdrawal).Error
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// MarkSent flips a pending withdrawal to SENT. The notification is logged
// after the commit; delivery failures must not abort a committed payout.
func (s *WithdrawalService) MarkSent(withdrawalID string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&withdrawal, "id = ?", withdrawalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", withdrawalID, models.WithdrawalStatusPending).
			Updates(map[string]interface{}{"status": models.WithdrawalStatusSent, "processed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWithdrawalClosed
		}
		withdrawal.Status = models.WithdrawalStatusSent
		withdrawal.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Outside the transaction on purpose.
	log.Printf("📧 [WITHDRAWAL] sent notification queued: user=%s amount=%d method=%s", withdrawal.UserID, withdrawal.AmountCents, withdrawal.Method)
	return &withdrawal, nil
}

// Refund puts the money back on the balance (not lifetime earned — it was
// counted once already) and closes the withdrawal.
func (s *WithdrawalService) Refund(withdrawalID string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&withdrawal, "id = ?", withdrawalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status IN ?", withdrawalID, []models.WithdrawalStatus{models.WithdrawalStatusPending, models.WithdrawalStatusSent}).
			Updates(map[string]interface{}{"status": models.WithdrawalStatusRefunded, "processed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWithdrawalClosed
		}
		desc := fmt.Sprintf("Withdrawal refund (%s)", withdrawal.Method)
		if err := creditBalanceOnly(tx, withdrawal.UserID, withdrawal.AmountCents, models.TxnWithdrawalRefund, desc); err != nil {
			return err
		}
		if err := tx.Exec(
			`UPDATE users SET total_withdrawn_cents = total_withdrawn_cents - ? WHERE id = ? AND total_withdrawn_cents >= ?`,
			withdrawal.AmountCents, withdrawal.UserID, withdrawal.AmountCents,
		).Error; err != nil {
			return err
		}
		withdrawal.Status = models.WithdrawalStatusRefunded
		withdrawal.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// ListForUser returns a user's withdrawal history, newest first.
func (s *WithdrawalService) ListForUser(userID string, limit int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Withdrawal
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
