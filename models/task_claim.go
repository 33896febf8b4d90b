package models

import "time"

// TaskClaim is one rewarded completion (internal task or offerwall postback).
// TaskKey is the idempotency key: the unique index is what turns a retried
// provider callback into a no-op instead of a double credit.
//
// Lifecycle: created at credit time. CreditedAt == nil means the payout is
// still held (PendingUntil says until when); CreditedAt transitions from nil
// to a timestamp exactly once, either by hold-expiry release or by immediate
// credit. ReversedAt transitions from nil exactly once; the conditional
// update that sets it is what serializes concurrent reversal callbacks.
type TaskClaim struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string     `gorm:"index;not null" json:"user_id"`
	TaskKey       string     `gorm:"uniqueIndex;not null" json:"task_key"`
	OfferwallName string     `gorm:"index" json:"offerwall_name"`
	OfferID       string     `json:"offer_id"`
	OfferTitle    string     `json:"offer_title"`
	PayoutCents   int64      `gorm:"not null" json:"payout_cents"`
	ClaimedAt     time.Time  `gorm:"index;autoCreateTime" json:"claimed_at"`
	PendingUntil  *time.Time `json:"pending_until,omitempty"`
	CreditedAt    *time.Time `json:"credited_at,omitempty"`
	ReversedAt    *time.Time `json:"reversed_at,omitempty"`
}
