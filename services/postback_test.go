package services

import (
	"testing"
	"time"

	"easyearn-backend/config"
	"easyearn-backend/models"

	"gorm.io/gorm"
)

const testPostbackURL = "https://api.test.local/postback/adgem"

// adgemProvider returns the real AdGem config with no secrets configured,
// so signature enforcement is off and the state machine is what is under
// test.
func adgemProvider() *ProviderConfig {
	return BuildProviders(&config.Config{})["adgem"]
}

func creditParams(userID, txnID, usd string) map[string]string {
	return map[string]string{
		"transaction_id": txnID,
		"player_id":      userID,
		"amount":         usd,
		"offer_id":       "off-1",
		"offer_name":     "Test Offer",
	}
}

func TestCreditIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	params := creditParams(user.ID, "tx-1", "2.00")

	first, err := svc.Handle(p, params, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if first.Outcome != OutcomeCredited {
		t.Fatalf("first outcome: got %s, want %s", first.Outcome, OutcomeCredited)
	}

	second, err := svc.Handle(p, params, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if second.Outcome != OutcomeDuplicate {
		t.Errorf("second outcome: got %s, want %s", second.Outcome, OutcomeDuplicate)
	}

	var claims int64
	db.Model(&models.TaskClaim{}).Where("user_id = ?", user.ID).Count(&claims)
	if claims != 1 {
		t.Errorf("claims: got %d, want 1", claims)
	}
	if got := reloadUser(t, db, user.ID).BalanceCents; got != 200 {
		t.Errorf("balance after duplicate: got %d, want 200", got)
	}
	if n := countTransactions(t, db, user.ID, models.TxnEarn); n != 1 {
		t.Errorf("EARN transactions: got %d, want 1", n)
	}
}

func TestLargePayoutIsHeldNotCredited(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	result, err := svc.Handle(p, creditParams(user.ID, "tx-hold", "5.00"), testPostbackURL, nil)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if result.Outcome != OutcomePending {
		t.Fatalf("outcome: got %s, want %s", result.Outcome, OutcomePending)
	}
	if got := reloadUser(t, db, user.ID).BalanceCents; got != 0 {
		t.Errorf("balance while held: got %d, want 0", got)
	}

	var claim models.TaskClaim
	if err := db.First(&claim, "task_key = ?", result.TaskKey).Error; err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.CreditedAt != nil {
		t.Error("held claim should not be credited yet")
	}
	if claim.PendingUntil == nil {
		t.Fatal("held claim has no pending_until")
	}
	wantDays := time.Duration(shortHoldDays) * 24 * time.Hour
	if d := time.Until(*claim.PendingUntil); d < wantDays-time.Hour || d > wantDays+time.Hour {
		t.Errorf("hold duration: got %v, want about %v", d, wantDays)
	}
	if n := countTransactions(t, db, user.ID, models.TxnEarnPending); n != 1 {
		t.Errorf("EARN_PENDING transactions: got %d, want 1", n)
	}
}

func TestReversalBeforeReleaseCancelsWithoutDebit(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	credited, err := svc.Handle(p, creditParams(user.ID, "tx-rev", "5.00"), testPostbackURL, nil)
	if err != nil || credited.Outcome != OutcomePending {
		t.Fatalf("credit: %v / %v", credited, err)
	}

	reversal := creditParams(user.ID, "tx-rev", "5.00")
	reversal["status"] = "chargeback"
	result, err := svc.Handle(p, reversal, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("reversal: %v", err)
	}
	if result.Outcome != OutcomeReversed {
		t.Fatalf("outcome: got %s, want %s", result.Outcome, OutcomeReversed)
	}

	fresh := reloadUser(t, db, user.ID)
	if fresh.BalanceCents != 0 || fresh.LifetimeEarnedCents != 0 {
		t.Errorf("balance/lifetime after cancelled hold: got %d/%d, want 0/0", fresh.BalanceCents, fresh.LifetimeEarnedCents)
	}

	var claim models.TaskClaim
	if err := db.First(&claim, "task_key = ?", credited.TaskKey).Error; err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.CreditedAt == nil {
		t.Error("cancelled claim should be closed out (credited_at set)")
	}

	// The release sweep must not pay the cancelled claim.
	if _, err := releaseAll(db, user.ID); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := reloadUser(t, db, user.ID).BalanceCents; got != 0 {
		t.Errorf("balance after sweep over cancelled claim: got %d, want 0", got)
	}

	// A retried reversal is a no-op duplicate.
	dup, err := svc.Handle(p, reversal, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("duplicate reversal: %v", err)
	}
	if dup.Outcome != OutcomeDuplicate {
		t.Errorf("duplicate reversal outcome: got %s, want %s", dup.Outcome, OutcomeDuplicate)
	}
}

func TestReversalAfterCreditDebitsBalance(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	if _, err := svc.Handle(p, creditParams(user.ID, "tx-final", "2.00"), testPostbackURL, nil); err != nil {
		t.Fatalf("credit: %v", err)
	}

	reversal := creditParams(user.ID, "tx-final", "2.00")
	reversal["status"] = "reverse"
	result, err := svc.Handle(p, reversal, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("reversal: %v", err)
	}
	if result.Outcome != OutcomeReversed {
		t.Fatalf("outcome: got %s, want %s", result.Outcome, OutcomeReversed)
	}

	fresh := reloadUser(t, db, user.ID)
	if fresh.BalanceCents != 0 {
		t.Errorf("balance: got %d, want 0", fresh.BalanceCents)
	}
	if fresh.LifetimeEarnedCents != 0 {
		t.Errorf("lifetime: got %d, want 0", fresh.LifetimeEarnedCents)
	}

	var debit models.Transaction
	if err := db.First(&debit, "user_id = ? AND amount_cents < 0", user.ID).Error; err != nil {
		t.Fatalf("debit transaction: %v", err)
	}
	if debit.AmountCents != -200 || debit.Type != models.TxnEarn {
		t.Errorf("debit row: got %d %s, want -200 EARN", debit.AmountCents, debit.Type)
	}
}

func TestReversalClampsAtZeroBalance(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	if _, err := svc.Handle(p, creditParams(user.ID, "tx-clamp", "3.00"), testPostbackURL, nil); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// The user spends most of it before the provider retracts.
	if err := db.Exec(`UPDATE users SET balance_cents = 80 WHERE id = ?`, user.ID).Error; err != nil {
		t.Fatalf("spend: %v", err)
	}

	reversal := creditParams(user.ID, "tx-clamp", "3.00")
	reversal["status"] = "fraud"
	if _, err := svc.Handle(p, reversal, testPostbackURL, nil); err != nil {
		t.Fatalf("reversal: %v", err)
	}

	fresh := reloadUser(t, db, user.ID)
	if fresh.BalanceCents != 0 {
		t.Errorf("balance must clamp to exactly 0, got %d", fresh.BalanceCents)
	}
	if fresh.BalanceCents < 0 {
		t.Error("balance went negative")
	}

	// The audit row still carries the full original payout.
	var debit models.Transaction
	if err := db.First(&debit, "user_id = ? AND amount_cents < 0", user.ID).Error; err != nil {
		t.Fatalf("debit transaction: %v", err)
	}
	if debit.AmountCents != -300 {
		t.Errorf("audit amount: got %d, want -300", debit.AmountCents)
	}
}

func TestDuplicateReversalOfReleasedClaimDebitsOnce(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	if _, err := svc.Handle(p, creditParams(user.ID, "tx-dup-rev", "2.00"), testPostbackURL, nil); err != nil {
		t.Fatalf("credit: %v", err)
	}

	reversal := creditParams(user.ID, "tx-dup-rev", "2.00")
	reversal["status"] = "chargeback"
	first, err := svc.Handle(p, reversal, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("first reversal: %v", err)
	}
	if first.Outcome != OutcomeReversed {
		t.Fatalf("first outcome: got %s, want %s", first.Outcome, OutcomeReversed)
	}

	// The retried reversal must lose against the reversed_at marker the
	// first one set, no matter how it interleaves.
	second, err := svc.Handle(p, reversal, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("second reversal: %v", err)
	}
	if second.Outcome != OutcomeDuplicate {
		t.Errorf("second outcome: got %s, want %s", second.Outcome, OutcomeDuplicate)
	}

	fresh := reloadUser(t, db, user.ID)
	if fresh.BalanceCents != 0 {
		t.Errorf("balance: got %d, want 0 (single debit)", fresh.BalanceCents)
	}
	var debits int64
	if err := db.Model(&models.Transaction{}).
		Where("user_id = ? AND amount_cents < 0", user.ID).
		Count(&debits).Error; err != nil {
		t.Fatal(err)
	}
	if debits != 1 {
		t.Errorf("negative ledger rows: got %d, want 1", debits)
	}

	var claim models.TaskClaim
	if err := db.First(&claim, "task_key = ?", first.TaskKey).Error; err != nil {
		t.Fatal(err)
	}
	if claim.ReversedAt == nil {
		t.Error("reversed claim must carry the reversal marker")
	}
}

func TestReversalWithNoClaimIsIgnored(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	reversal := creditParams(user.ID, "tx-ghost", "1.00")
	reversal["status"] = "chargeback"
	result, err := svc.Handle(p, reversal, testPostbackURL, nil)
	if err != nil {
		t.Fatalf("reversal: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Errorf("outcome: got %s, want %s", result.Outcome, OutcomeIgnored)
	}
}

func TestUnknownAndInactiveUsersAreIgnored(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	result, err := svc.Handle(p, creditParams("nope", "tx-u", "1.00"), testPostbackURL, nil)
	if err != nil {
		t.Fatalf("unknown user: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Errorf("unknown user outcome: got %s, want %s", result.Outcome, OutcomeIgnored)
	}

	muted := createTestUser(t, db, 0)
	db.Model(&models.User{}).Where("id = ?", muted.ID).Update("status", models.UserStatusMuted)
	result, err = svc.Handle(p, creditParams(muted.ID, "tx-m", "1.00"), testPostbackURL, nil)
	if err != nil {
		t.Fatalf("muted user: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Errorf("muted user outcome: got %s, want %s", result.Outcome, OutcomeIgnored)
	}
	if got := reloadUser(t, db, muted.ID).BalanceCents; got != 0 {
		t.Errorf("muted user balance: got %d, want 0", got)
	}
}

func TestMissingRequiredFieldsRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	if _, err := svc.Handle(p, map[string]string{"amount": "1.00"}, testPostbackURL, nil); err != ErrMissingParams {
		t.Errorf("missing ids: got %v, want ErrMissingParams", err)
	}

	user := createTestUser(t, db, 0)
	params := map[string]string{"transaction_id": "tx-na", "player_id": user.ID}
	if _, err := svc.Handle(p, params, testPostbackURL, nil); err != ErrInvalidAmount {
		t.Errorf("missing amount: got %v, want ErrInvalidAmount", err)
	}
}

func TestNonFiniteAmountsRejected(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	// ParseFloat happily accepts these; rounding them to cents would produce
	// a garbage negative that reads as a reversal.
	for _, bad := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
		if _, err := svc.Handle(p, creditParams(user.ID, "tx-"+bad, bad), testPostbackURL, nil); err != ErrInvalidAmount {
			t.Errorf("amount %q: got %v, want ErrInvalidAmount", bad, err)
		}
	}
	if got := reloadUser(t, db, user.ID).BalanceCents; got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
	var n int64
	if err := db.Model(&models.Transaction{}).Where("user_id = ?", user.ID).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("ledger rows: got %d, want 0", n)
	}
}

func TestHoldReleaseAppliesBalanceOnce(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, 0)
	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	result, err := svc.Handle(p, creditParams(user.ID, "tx-due", "5.00"), testPostbackURL, nil)
	if err != nil || result.Outcome != OutcomePending {
		t.Fatalf("credit: %v / %v", result, err)
	}

	// Collapse the hold so it is due.
	past := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.TaskClaim{}).Where("task_key = ?", result.TaskKey).Update("pending_until", past).Error; err != nil {
		t.Fatalf("expire hold: %v", err)
	}

	released, err := releaseAll(db, user.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Errorf("released: got %d, want 1", released)
	}
	if got := reloadUser(t, db, user.ID).BalanceCents; got != 500 {
		t.Errorf("balance after release: got %d, want 500", got)
	}

	// Redundant sweep is a no-op.
	released, err = releaseAll(db, user.ID)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released != 0 {
		t.Errorf("second sweep released %d, want 0", released)
	}
	if got := reloadUser(t, db, user.ID).BalanceCents; got != 500 {
		t.Errorf("balance after redundant sweep: got %d, want 500", got)
	}
	if n := countTransactions(t, db, user.ID, models.TxnEarnRelease); n != 1 {
		t.Errorf("EARN_RELEASE transactions: got %d, want 1", n)
	}
}

func TestReferralBonusAwardedOnceAtThreshold(t *testing.T) {
	db := setupTestDB(t)
	referrer := createTestUser(t, db, 0)
	referred := createTestUser(t, db, 0)
	db.Model(&models.User{}).Where("id = ?", referred.ID).Update("referred_by_id", referrer.ID)

	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	// Several small instant credits; the threshold crossing happens on the
	// fourth.
	for i, usd := range []string{"3.00", "3.00", "3.00", "3.00", "3.00"} {
		if _, err := svc.Handle(p, creditParams(referred.ID, "tx-ref-"+string(rune('a'+i)), usd), testPostbackURL, nil); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	if n := countTransactions(t, db, referrer.ID, models.TxnReferralBonus); n != 1 {
		t.Errorf("referral bonuses: got %d, want 1", n)
	}
	if got := reloadUser(t, db, referrer.ID).BalanceCents; got != referralBonusCents {
		t.Errorf("referrer balance: got %d, want %d", got, referralBonusCents)
	}
}

func TestReferralBonusAwardedOnHoldRelease(t *testing.T) {
	db := setupTestDB(t)
	referrer := createTestUser(t, db, 0)
	referred := createTestUser(t, db, 0)
	db.Model(&models.User{}).Where("id = ?", referred.ID).Update("referred_by_id", referrer.ID)

	svc := NewPostbackService(db, BuildProviders(&config.Config{}))
	p := adgemProvider()

	// A single large payout crosses the threshold, but only once the hold
	// releases; nothing is owed while it is pending.
	result, err := svc.Handle(p, creditParams(referred.ID, "tx-ref-hold", "15.00"), testPostbackURL, nil)
	if err != nil || result.Outcome != OutcomePending {
		t.Fatalf("credit: %v / %v", result, err)
	}
	if n := countTransactions(t, db, referrer.ID, models.TxnReferralBonus); n != 0 {
		t.Fatalf("bonus before release: got %d, want 0", n)
	}

	past := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.TaskClaim{}).Where("task_key = ?", result.TaskKey).Update("pending_until", past).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := releaseAll(db, referred.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	if n := countTransactions(t, db, referrer.ID, models.TxnReferralBonus); n != 1 {
		t.Errorf("bonus after release: got %d, want 1", n)
	}
	if got := reloadUser(t, db, referrer.ID).BalanceCents; got != referralBonusCents {
		t.Errorf("referrer balance: got %d, want %d", got, referralBonusCents)
	}
}

// releaseAll runs the pending-release sweep for one user in a transaction,
// the same way the dashboard and the background sweeper do.
func releaseAll(db *gorm.DB, userID string) (int, error) {
	released := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		released, err = releaseDueForUser(tx, userID, time.Now().UTC())
		return err
	})
	return released, err
}
