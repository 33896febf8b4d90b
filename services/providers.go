// services/providers.go
package services

import "easyearn-backend/config"

// AckStyle is the acknowledgment contract a provider's delivery system
// expects.
type AckStyle int

const (
	// AckJSON responds {ok: true, ...} with HTTP status codes.
	AckJSON AckStyle = iota
	// AckToken responds a literal "1" / "0" text body (KIWIWALL-style
	// delivery that retries on anything but the token).
	AckToken
)

// ProviderConfig is one offerwall's postback dialect: parameter alias
// tables, reversal vocabulary, signature scheme and ack contract. These
// alias lists are reviewable data, not code — several amount fallbacks
// (e.g. kiwiwall's sub_id_2) are empirical observations of provider
// behavior, not documented contract, and should be revisited whenever a
// provider updates its docs.
type ProviderConfig struct {
	Name string

	TxnIDParams  []string
	UserIDParams []string
	// SubIDParams extend the task key when present (e.g. AdGem goal ids:
	// one transaction can carry several rewarded goals).
	SubIDParams []string

	// Amount resolution order: cents fields, then USD fields (x100), then
	// raw numeric proxy fields.
	AmountCentsParams []string
	AmountUSDParams   []string
	AmountProxyParams []string

	OfferIDParams    []string
	OfferTitleParams []string
	StatusParams     []string
	SignatureParams  []string

	// ReversalWords are substring-matched against the status discriminator;
	// FailureCodes are exact numeric codes meaning chargeback/rejection.
	ReversalWords []string
	FailureCodes  []string

	Scheme  SignatureScheme
	Ack     AckStyle
	Secrets []string
}

// BuildProviders wires the five supported offerwalls with their secrets
// resolved from config.
func BuildProviders(cfg *config.Config) map[string]*ProviderConfig {
	providers := []*ProviderConfig{
		{
			Name:              "adgem",
			TxnIDParams:       []string{"transaction_id", "tx_id", "txid"},
			UserIDParams:      []string{"player_id", "playerid", "user_id"},
			SubIDParams:       []string{"goal_id", "goalid"},
			AmountUSDParams:   []string{"amount", "payout"},
			AmountCentsParams: []string{"amount_cents"},
			OfferIDParams:     []string{"offer_id", "campaign_id"},
			OfferTitleParams:  []string{"offer_name", "campaign_name"},
			StatusParams:      []string{"status", "type"},
			SignatureParams:   []string{"verifier", "signature", "hash"},
			ReversalWords:     []string{"reverse", "chargeback", "fraud", "reject"},
			Scheme: SignatureScheme{
				Digests:     []DigestKind{DigestSHA256, DigestHMACSHA256, DigestMD5},
				StripParams: []string{"verifier", "signature", "hash", "debug"},
			},
			Ack:     AckJSON,
			Secrets: cfg.AdGemSecrets,
		},
		{
			Name:              "bitlabs",
			TxnIDParams:       []string{"tx", "transaction_id", "tx_id"},
			UserIDParams:      []string{"uid", "user_id"},
			AmountUSDParams:   []string{"val", "value"},
			AmountProxyParams: []string{"raw"},
			OfferIDParams:     []string{"survey_id", "offer_id"},
			OfferTitleParams:  []string{"survey_name", "offer_name"},
			StatusParams:      []string{"type", "status", "result"},
			SignatureParams:   []string{"hash", "signature"},
			ReversalWords:     []string{"reconciliation", "reverse", "chargeback", "screenout_reversal"},
			Scheme: SignatureScheme{
				Digests:     []DigestKind{DigestHMACSHA1, DigestHMACSHA256},
				StripParams: []string{"hash", "signature", "debug"},
			},
			Ack:     AckJSON,
			Secrets: cfg.BitLabsSecrets,
		},
		{
			Name:              "cpx",
			TxnIDParams:       []string{"trans_id", "transaction_id"},
			UserIDParams:      []string{"user_id", "ext_user_id"},
			AmountCentsParams: []string{"amount_local", "amount"},
			AmountUSDParams:   []string{"amount_usd"},
			OfferIDParams:     []string{"offer_id", "survey_id"},
			OfferTitleParams:  []string{"offer_name", "survey_name"},
			StatusParams:      []string{"status"},
			SignatureParams:   []string{"secure_hash", "hash"},
			ReversalWords:     []string{"reverse", "cancel"},
			FailureCodes:      []string{"2"}, // status=2 is CPX's chargeback
			Scheme: SignatureScheme{
				Digests:     []DigestKind{DigestMD5},
				StripParams: []string{"secure_hash", "hash", "debug"},
			},
			Ack:     AckJSON,
			Secrets: cfg.CPXSecrets,
		},
		{
			// KIWIWALL's true signing scheme was never definitively
			// confirmed against observed traffic; the wide digest list is a
			// pragmatic brute-force matcher, preserved behaviorally. Do not
			// copy this breadth into new integrations.
			Name:              "kiwiwall",
			TxnIDParams:       []string{"trans_id", "transaction_id"},
			UserIDParams:      []string{"sub_id", "user_id"},
			AmountCentsParams: []string{"amount"},
			AmountProxyParams: []string{"sub_id_2", "sub_id2"},
			OfferIDParams:     []string{"offer_id"},
			OfferTitleParams:  []string{"offer_name"},
			StatusParams:      []string{"status"},
			SignatureParams:   []string{"signature", "sig", "hash"},
			ReversalWords:     []string{"reverse", "chargeback"},
			FailureCodes:      []string{"2"},
			Scheme: SignatureScheme{
				Digests:     []DigestKind{DigestMD5, DigestHMACSHA1, DigestHMACSHA256, DigestHMACSHA512, DigestSHA3256},
				StripParams: []string{"signature", "sig", "hash", "debug"},
				IncludeBody: true,
			},
			Ack:     AckToken,
			Secrets: cfg.KiwiwallSecrets,
		},
		{
			Name:              "theoremreach",
			TxnIDParams:       []string{"transaction_id", "tx_id"},
			UserIDParams:      []string{"user_id", "uid"},
			AmountCentsParams: []string{"reward"}, // reward arrives in cents
			AmountUSDParams:   []string{"reward_usd"},
			OfferIDParams:     []string{"survey_id", "offer_id"},
			OfferTitleParams:  []string{"survey_name"},
			StatusParams:      []string{"status", "result"},
			SignatureParams:   []string{"hash", "signature"},
			ReversalWords:     []string{"reverse", "chargeback", "reject"},
			Scheme: SignatureScheme{
				Digests:     []DigestKind{DigestMD5, DigestHMACSHA1},
				StripParams: []string{"hash", "signature", "debug"},
			},
			Ack:     AckJSON,
			Secrets: cfg.TheoremReachSecrets,
		},
	}

	out := make(map[string]*ProviderConfig, len(providers))
	for _, p := range providers {
		out[p.Name] = p
	}
	return out
}
