package models

import "time"

type WithdrawalMethod string

const (
	WithdrawalMethodPayPal   WithdrawalMethod = "paypal"
	WithdrawalMethodGiftCard WithdrawalMethod = "giftcard"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "PENDING"
	WithdrawalStatusSent     WithdrawalStatus = "SENT"
	WithdrawalStatusRefunded WithdrawalStatus = "REFUNDED"
)

// Withdrawal is a cash-out request. The balance debit happens atomically
// with row creation; a refund is the only path that puts the money back.
type Withdrawal struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string           `gorm:"index;not null" json:"user_id"`
	Method      WithdrawalMethod `gorm:"not null" json:"method"`
	Destination string           `gorm:"not null" json:"destination"` // paypal email or gift card email
	AmountCents int64            `gorm:"not null" json:"amount_cents"`
	Status      WithdrawalStatus `gorm:"not null;default:'PENDING';index" json:"status"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}
