// services/postback.go
package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"easyearn-backend/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostbackService reconciles untrusted offerwall callbacks into idempotent,
// reversible ledger mutations.
type PostbackService struct {
	DB        *gorm.DB
	Providers map[string]*ProviderConfig
}

func NewPostbackService(db *gorm.DB, providers map[string]*ProviderConfig) *PostbackService {
	return &PostbackService{DB: db, Providers: providers}
}

// PostbackOutcome is the explicit result of a reconciliation attempt. Every
// accepted-but-not-credited path is classified; nothing is silently
// swallowed.
type PostbackOutcome string

const (
	OutcomeCredited  PostbackOutcome = "credited"
	OutcomePending   PostbackOutcome = "pending"
	OutcomeDuplicate PostbackOutcome = "duplicate"
	OutcomeReversed  PostbackOutcome = "reversed"
	OutcomeIgnored   PostbackOutcome = "ignored"
)

type PostbackResult struct {
	Outcome     PostbackOutcome `json:"outcome"`
	TaskKey     string          `json:"task_key"`
	AmountCents int64           `json:"amount_cents"`
	Note        string          `json:"note,omitempty"`
}

// ParsedPostback is the provider-agnostic view of one callback's fields.
type ParsedPostback struct {
	TxnID       string `json:"txn_id"`
	UserID      string `json:"user_id"`
	SubID       string `json:"sub_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	HasAmount   bool   `json:"has_amount"`
	OfferID     string `json:"offer_id,omitempty"`
	OfferTitle  string `json:"offer_title,omitempty"`
	Status      string `json:"status,omitempty"`
	Signature   string `json:"-"`
	IsReversal  bool   `json:"is_reversal"`
}

// Parse resolves the provider's parameter aliases into logical fields and
// classifies credit vs reversal.
func (p *ProviderConfig) Parse(params map[string]string) ParsedPostback {
	parsed := ParsedPostback{
		TxnID:      firstParam(params, p.TxnIDParams),
		UserID:     firstParam(params, p.UserIDParams),
		SubID:      firstParam(params, p.SubIDParams),
		OfferID:    firstParam(params, p.OfferIDParams),
		OfferTitle: firstParam(params, p.OfferTitleParams),
		Status:     firstParam(params, p.StatusParams),
		Signature:  firstParam(params, p.SignatureParams),
	}
	parsed.AmountCents, parsed.HasAmount = p.parseAmount(params)
	parsed.IsReversal = p.classifyReversal(parsed)
	return parsed
}

func (p *ProviderConfig) parseAmount(params map[string]string) (int64, bool) {
	if v, ok := firstNumber(params, p.AmountCentsParams); ok {
		return int64(math.Round(v)), true
	}
	if v, ok := firstNumber(params, p.AmountUSDParams); ok {
		return int64(math.Round(v * 100)), true
	}
	if v, ok := firstNumber(params, p.AmountProxyParams); ok {
		return int64(math.Round(v)), true
	}
	return 0, false
}

func (p *ProviderConfig) classifyReversal(parsed ParsedPostback) bool {
	if parsed.HasAmount && parsed.AmountCents < 0 {
		return true
	}
	status := strings.ToLower(strings.TrimSpace(parsed.Status))
	if status == "" {
		return false
	}
	for _, code := range p.FailureCodes {
		if status == code {
			return true
		}
	}
	for _, word := range p.ReversalWords {
		if strings.Contains(status, word) {
			return true
		}
	}
	return false
}

// TaskKey builds the idempotency key for this callback, unique per
// (provider, external transaction id[, sub id]).
func (p *ProviderConfig) TaskKey(parsed ParsedPostback) string {
	key := p.Name + ":" + parsed.TxnID
	if parsed.SubID != "" {
		key += ":" + parsed.SubID
	}
	return key
}

// Handle runs the full per-request algorithm: parse, verify, classify, and
// apply the state transition inside one transaction. Returned errors are the
// sentinel kinds the handler layer maps onto HTTP statuses; business
// outcomes (duplicate, ignored) are results, not errors.
func (s *PostbackService) Handle(p *ProviderConfig, params map[string]string, rawURL string, body []byte) (*PostbackResult, error) {
	parsed := p.Parse(params)
	if parsed.TxnID == "" || parsed.UserID == "" {
		return nil, ErrMissingParams
	}
	if !VerifySignature(p.Scheme, rawURL, body, p.Secrets, parsed.Signature) {
		return nil, ErrBadSignature
	}

	taskKey := p.TaskKey(parsed)
	if parsed.IsReversal {
		return s.applyReversal(p, parsed, taskKey)
	}
	if !parsed.HasAmount || parsed.AmountCents < 1 {
		return nil, ErrInvalidAmount
	}
	return s.applyCredit(p, parsed, taskKey)
}

// applyCredit transitions unseen -> credited-pending | credited-final.
// The TaskClaim insert rides the task_key unique index with ON CONFLICT DO
// NOTHING, so concurrent duplicates collapse to exactly one claim without a
// SELECT-then-INSERT window.
func (s *PostbackService) applyCredit(p *ProviderConfig, parsed ParsedPostback, taskKey string) (*PostbackResult, error) {
	var result *PostbackResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", parsed.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Accepted-but-ignored: the provider cannot fix a user-id
				// mismatch, and a 4xx would only trigger retry storms.
				result = &PostbackResult{Outcome: OutcomeIgnored, TaskKey: taskKey, Note: "unknown user"}
				return nil
			}
			return err
		}
		if user.Status != models.UserStatusActive {
			result = &PostbackResult{Outcome: OutcomeIgnored, TaskKey: taskKey, Note: "user not active"}
			return nil
		}

		now := time.Now().UTC()
		claim := models.TaskClaim{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			TaskKey:       taskKey,
			OfferwallName: p.Name,
			OfferID:       parsed.OfferID,
			OfferTitle:    parsed.OfferTitle,
			PayoutCents:   parsed.AmountCents,
			ClaimedAt:     now,
		}
		holdDays := HoldDaysFor(parsed.AmountCents)
		if holdDays == 0 {
			claim.CreditedAt = &now
		} else {
			until := now.AddDate(0, 0, holdDays)
			claim.PendingUntil = &until
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_key"}},
			DoNothing: true,
		}).Create(&claim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			result = &PostbackResult{Outcome: OutcomeDuplicate, TaskKey: taskKey, AmountCents: parsed.AmountCents}
			return nil
		}

		if holdDays == 0 {
			if err := creditUser(tx, user.ID, parsed.AmountCents, models.TxnEarn, creditDescription(p.Name, parsed), nil); err != nil {
				return err
			}
			if err := maybeAwardReferralBonus(tx, &user, parsed.AmountCents); err != nil {
				return err
			}
			result = &PostbackResult{Outcome: OutcomeCredited, TaskKey: taskKey, AmountCents: parsed.AmountCents}
			return nil
		}

		// Held: balance untouched, the pending accrual is still recorded so
		// the user sees what is coming.
		if err := appendTransaction(tx, user.ID, models.TxnEarnPending, parsed.AmountCents, creditDescription(p.Name, parsed), nil); err != nil {
			return err
		}
		result = &PostbackResult{Outcome: OutcomePending, TaskKey: taskKey, AmountCents: parsed.AmountCents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyReversal transitions credited-pending|credited-final -> reversed, and
// absorbs duplicates and reversals with nothing to reverse.
func (s *PostbackService) applyReversal(p *ProviderConfig, parsed ParsedPostback, taskKey string) (*PostbackResult, error) {
	var result *PostbackResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var claim models.TaskClaim
		if err := tx.First(&claim, "task_key = ?", taskKey).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = &PostbackResult{Outcome: OutcomeIgnored, TaskKey: taskKey, Note: "nothing to reverse"}
				return nil
			}
			return err
		}

		reversalDesc := "Reversal of " + taskKey
		cancelDesc := "Pending cancelled for " + taskKey

		// The conditional update on reversed_at is the duplicate guard.
		// Concurrent reversals for the same claim contend on this one row
		// write; the loser matches zero rows and reports a duplicate, the
		// same way concurrent credits collapse on the task_key conflict.
		now := time.Now().UTC()
		res := tx.Model(&models.TaskClaim{}).
			Where("id = ? AND reversed_at IS NULL", claim.ID).
			Update("reversed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			result = &PostbackResult{Outcome: OutcomeDuplicate, TaskKey: taskKey, Note: "already reversed"}
			return nil
		}
		if claim.CreditedAt == nil {
			// Still held: collapse the hold and close the claim without
			// paying. The guarded update keeps a racing release sweep from
			// paying it out underneath us.
			res := tx.Model(&models.TaskClaim{}).
				Where("id = ? AND credited_at IS NULL", claim.ID).
				Updates(map[string]interface{}{"credited_at": now, "pending_until": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				if err := appendTransaction(tx, claim.UserID, models.TxnEarnPending, 0, cancelDesc, nil); err != nil {
					return err
				}
				result = &PostbackResult{Outcome: OutcomeReversed, TaskKey: taskKey, AmountCents: 0, Note: "pending hold cancelled"}
				return nil
			}
			// Lost the race to a release sweep; fall through to the debit.
		}

		if err := debitUserClamped(tx, claim.UserID, claim.PayoutCents, models.TxnEarn, reversalDesc); err != nil {
			return err
		}
		result = &PostbackResult{Outcome: OutcomeReversed, TaskKey: taskKey, AmountCents: -claim.PayoutCents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Referral bonus: the first time a referred user's lifetime earnings cross
// the qualifying threshold, the referrer gets a one-time bonus inside the
// same unit of work as the qualifying credit. Both instant credits and hold
// releases can be the crossing event.
const (
	referralQualifyCents = 1000
	referralBonusCents   = 50
)

func maybeAwardReferralBonus(tx *gorm.DB, user *models.User, creditedCents int64) error {
	if user.ReferredByID == nil {
		return nil
	}
	var fresh models.User
	if err := tx.First(&fresh, "id = ?", user.ID).Error; err != nil {
		return err
	}
	crossed := fresh.LifetimeEarnedCents >= referralQualifyCents &&
		fresh.LifetimeEarnedCents-creditedCents < referralQualifyCents
	if !crossed {
		return nil
	}
	var prior int64
	if err := tx.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ? AND source_user_id = ?", *user.ReferredByID, models.TxnReferralBonus, user.ID).
		Count(&prior).Error; err != nil {
		return err
	}
	if prior > 0 {
		return nil
	}
	desc := fmt.Sprintf("Referral bonus: %s reached $%.2f earned", user.Username, float64(referralQualifyCents)/100)
	if err := creditUser(tx, *user.ReferredByID, referralBonusCents, models.TxnReferralBonus, desc, &user.ID); err != nil {
		// A terminated referrer just forfeits the bonus.
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func creditDescription(provider string, parsed ParsedPostback) string {
	title := parsed.OfferTitle
	if title == "" {
		title = parsed.OfferID
	}
	if title == "" {
		return fmt.Sprintf("Offer completed (%s)", provider)
	}
	return fmt.Sprintf("Offer %s (%s)", slug.Make(title), provider)
}

func firstParam(params map[string]string, aliases []string) string {
	for _, a := range aliases {
		if v, ok := params[a]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNumber(params map[string]string, aliases []string) (float64, bool) {
	for _, a := range aliases {
		v, ok := params[a]
		if !ok {
			continue
		}
		// ParseFloat accepts "NaN" and "Inf"; rounding those to int64 is
		// undefined and must not reach amount classification.
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}
