package services

import "errors"

// Business-rule failures raised inside transactions. Handlers switch on
// these to produce a specific response instead of string-matching messages.
var (
	ErrMissingParams       = errors.New("missing required parameters")
	ErrBadSignature        = errors.New("invalid signature")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserNotActive       = errors.New("user not active")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWheelCooldown       = errors.New("wheel cooldown active")
	ErrNotEnoughReferrals  = errors.New("not enough active referrals")
	ErrNoCaseKeys          = errors.New("no level case keys available")
	ErrCaseNotAvailable    = errors.New("case not available")
	ErrStreakTooShort      = errors.New("streak below tier threshold")
	ErrInvalidTier         = errors.New("invalid case tier")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrWithdrawalClosed    = errors.New("withdrawal already processed")
)
