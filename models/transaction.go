package models

import "time"

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxnEarn             TransactionType = "EARN"
	TxnEarnPending      TransactionType = "EARN_PENDING"
	TxnEarnRelease      TransactionType = "EARN_RELEASE"
	TxnStreakCase       TransactionType = "STREAK_CASE"
	TxnLevelCase        TransactionType = "LEVEL_CASE"
	TxnWithdrawal       TransactionType = "WITHDRAWAL"
	TxnWithdrawalRefund TransactionType = "WITHDRAWAL_REFUND"
	TxnReferralBonus    TransactionType = "REFERRAL_BONUS"
	TxnPromoCodeCreate  TransactionType = "PROMO_CODE_CREATE"
	TxnPromoCodeRedeem  TransactionType = "PROMO_CODE_REDEEM"
	TxnWheelSpin        TransactionType = "WHEEL_SPIN"
)

// Transaction is the append-only audit trail. Every balance-affecting
// mutation writes exactly one row here in the same unit of work; nothing in
// the codebase updates or deletes rows.
type Transaction struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string          `gorm:"index;not null" json:"user_id"`
	Type         TransactionType `gorm:"not null;index" json:"type"`
	AmountCents  int64           `gorm:"not null" json:"amount_cents"` // signed; negative for debits
	Description  string          `json:"description"`
	SourceUserID *string         `gorm:"index" json:"source_user_id,omitempty"`
	CreatedAt    time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
}
