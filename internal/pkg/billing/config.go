package billing

import (
	"strings"
	"time"
)

// Config carries the payment processor credentials and billing defaults. It is
// built once at startup and injected into the catalog, ledger and engine.
type Config struct {
	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	DefaultCurrency     string        `env:"BILLING_DEFAULT_CURRENCY" envDefault:"usd"`
	LockTTL             time.Duration `env:"BILLING_LOCK_TTL" envDefault:"30s"`
}

func (c Config) currency() string {
	cur := strings.ToLower(strings.TrimSpace(c.DefaultCurrency))
	if cur == "" {
		return "usd"
	}
	return cur
}

func (c Config) lockTTL() time.Duration {
	if c.LockTTL <= 0 {
		return 30 * time.Second
	}
	return c.LockTTL
}
