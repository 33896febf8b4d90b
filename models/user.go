package models

import (
	"time"

	"gorm.io/gorm"
)

// UserStatus gates whether a user can earn, spin, or withdraw
type UserStatus string

const (
	UserStatusActive     UserStatus = "ACTIVE"
	UserStatusMuted      UserStatus = "MUTED"
	UserStatusTerminated UserStatus = "TERMINATED"
)

// User holds identity plus the mutable financial state that every credit,
// reversal and withdrawal path contends on. BalanceCents must never go
// negative; LifetimeEarnedCents only moves down on explicit reversals.
type User struct {
	ID       string     `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string     `gorm:"uniqueIndex;not null" json:"email"`
	Username string     `json:"username"`
	Status   UserStatus `gorm:"not null;default:'ACTIVE';index" json:"status"`

	BalanceCents        int64 `gorm:"not null;default:0" json:"balance_cents"`
	LifetimeEarnedCents int64 `gorm:"not null;default:0" json:"lifetime_earned_cents"` // level-determining
	TotalWithdrawnCents int64 `gorm:"not null;default:0" json:"total_withdrawn_cents"`

	IsVIP           bool       `gorm:"column:is_vip;default:false" json:"is_vip"`
	WheelLastSpunAt *time.Time `json:"wheel_last_spun_at,omitempty"`
	ReferredByID    *string    `gorm:"index" json:"referred_by_id,omitempty"` // weak reference, not ownership

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
