package models

import (
	"strings"
	"time"
)

// Billing interval values accepted for plans.
const (
	BillingIntervalDay      = "day"
	BillingIntervalWeek     = "week"
	BillingIntervalMonth    = "month"
	BillingIntervalYear     = "year"
	BillingIntervalLifetime = "lifetime"
)

const DefaultBillingCurrency = "usd"

// Plan is a purchasable billing configuration mirrored as a Stripe product/price pair.
type Plan struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(150);not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	Amount          float64        `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency        string         `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Interval        string         `gorm:"type:varchar(16);not null;default:'month'" json:"interval"`
	IntervalCount   int            `gorm:"not null;default:1" json:"interval_count"`
	FreeTrialDays   int            `gorm:"not null;default:0" json:"free_trial_days"`
	Active          bool           `gorm:"default:true;index" json:"active"`
	Features        map[string]any `gorm:"type:json;serializer:json" json:"features,omitempty"`
	StripeProductID string         `gorm:"type:varchar(191);index" json:"stripe_product_id"`
	StripePriceID   string         `gorm:"type:varchar(191);index" json:"stripe_price_id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Plan) TableName() string {
	return "billing_plans"
}

// IsLifetimePlan reports whether a plan name/interval pair describes a one-time
// payment plan. Either a name containing "lifetime" or the lifetime interval is enough.
func IsLifetimePlan(name, interval string) bool {
	return strings.Contains(strings.ToLower(name), BillingIntervalLifetime) ||
		strings.EqualFold(strings.TrimSpace(interval), BillingIntervalLifetime)
}

// IsLifetime reports whether the plan is a one-time payment plan.
func (p *Plan) IsLifetime() bool {
	return IsLifetimePlan(p.Name, p.Interval)
}
