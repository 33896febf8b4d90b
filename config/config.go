package config

import (
	"os"
	"strings"
)

// Config is resolved once at startup. Handlers and services never read the
// environment directly; every provider's secret list lives here as a typed
// slice. An empty slice disables signature enforcement for that provider, so
// integrations are not blocked before secrets are provisioned.
type Config struct {
	DatabaseURL    string
	ListenAddr     string
	AllowedOrigins string

	AdGemSecrets        []string
	BitLabsSecrets      []string
	CPXSecrets          []string
	KiwiwallSecrets     []string
	TheoremReachSecrets []string

	// WheelTestMode bypasses wheel eligibility gates and skips the cooldown
	// write, for admin smoke-testing segment payouts.
	WheelTestMode bool

	// R2 audit archive settings. All four empty = archive worker disabled.
	CloudflareAccountID string
	R2AccessKeyID       string
	R2AccessKeySecret   string
	R2BucketName        string
	CDNBaseURL          string
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ListenAddr:     envOr("LISTEN_ADDR", ":5300"),
		AllowedOrigins: envOr("ALLOWED_ORIGINS", "http://localhost:3000"),

		AdGemSecrets:        secretList("ADGEM_POSTBACK_SECRET", "ADGEM_POSTBACK_SECRET_ALT"),
		BitLabsSecrets:      secretList("BITLABS_SECRET", "BITLABS_POSTBACK_SECRET"),
		CPXSecrets:          secretList("CPX_POSTBACK_SECRET", "CPX_SECURE_HASH_SECRET"),
		KiwiwallSecrets:     secretList("KIWIWALL_SECRET", "KIWIWALL_SECRET_KEY", "KIWIWALL_POSTBACK_SECRET"),
		TheoremReachSecrets: secretList("THEOREMREACH_SECRET", "THEOREMREACH_POSTBACK_SECRET"),

		WheelTestMode: strings.EqualFold(os.Getenv("WHEEL_TEST_MODE"), "true"),

		CloudflareAccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:       os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret:   os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2BucketName:        os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:          os.Getenv("CDN_BASE_URL"),
	}
	return cfg
}

// AuditArchiveEnabled reports whether R2 credentials are fully provisioned.
func (c *Config) AuditArchiveEnabled() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" &&
		c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// secretList collects every configured variant of a provider secret,
// trimmed, skipping blanks. Providers have been observed signing with
// rotated or legacy keys, so all variants stay admissible.
func secretList(names ...string) []string {
	var out []string
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
