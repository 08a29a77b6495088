package billing

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/PayLedger/app/models"
)

const (
	PlanTypeLifetime     = "lifetime"
	PlanTypeSubscription = "subscription"
)

var validate = validator.New()

// PlanSpec is the input for creating a plan.
type PlanSpec struct {
	Name          string         `json:"name" validate:"required,max=150"`
	Description   string         `json:"description" validate:"max=500"`
	Amount        float64        `json:"amount" validate:"gte=0"`
	Currency      string         `json:"currency" validate:"omitempty,len=3"`
	Interval      string         `json:"interval" validate:"omitempty,oneof=day week month year lifetime"`
	IntervalCount *int           `json:"interval_count" validate:"omitnil,gt=0"`
	FreeTrialDays int            `json:"free_trial_days" validate:"gte=0"`
	Active        *bool          `json:"active"`
	Features      map[string]any `json:"features"`
}

// PlanPatch is a partial plan update; nil fields are left untouched.
type PlanPatch struct {
	Name          *string        `json:"name" validate:"omitnil,min=1,max=150"`
	Description   *string        `json:"description" validate:"omitnil,max=500"`
	Amount        *float64       `json:"amount" validate:"omitnil,gte=0"`
	Currency      *string        `json:"currency" validate:"omitnil,len=3"`
	Interval      *string        `json:"interval" validate:"omitnil,oneof=day week month year lifetime"`
	IntervalCount *int           `json:"interval_count" validate:"omitnil,gt=0"`
	FreeTrialDays *int           `json:"free_trial_days" validate:"omitnil,gte=0"`
	Active        *bool          `json:"active"`
	Features      map[string]any `json:"features"`
}

func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	if i == "" {
		return models.BillingIntervalMonth
	}
	return i
}

func normalizeCurrency(currency, fallback string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return fallback
	}
	return c
}

// MinorUnits converts a decimal currency amount to the processor's smallest unit.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func planType(lifetime bool) string {
	if lifetime {
		return PlanTypeLifetime
	}
	return PlanTypeSubscription
}

// priceFor builds the processor price request for a plan. Lifetime plans never
// carry a recurrence, whatever interval count they store.
func priceFor(productID string, p *models.Plan) PriceInput {
	in := PriceInput{
		ProductID:  productID,
		Currency:   p.Currency,
		UnitAmount: MinorUnits(p.Amount),
	}
	if !p.IsLifetime() {
		in.Recurring = &Recurrence{
			Interval:      p.Interval,
			IntervalCount: int64(p.IntervalCount),
		}
	}
	return in
}

// pricingChanged compares the incoming patch with the stored plan. The interval count
// only matters for recurring plans.
func pricingChanged(existing *models.Plan, patch PlanPatch, lifetime bool, defaultCurrency string) bool {
	if patch.Amount != nil && MinorUnits(*patch.Amount) != MinorUnits(existing.Amount) {
		return true
	}
	if patch.Currency != nil && normalizeCurrency(*patch.Currency, defaultCurrency) != existing.Currency {
		return true
	}
	if !lifetime && patch.IntervalCount != nil && *patch.IntervalCount != existing.IntervalCount {
		return true
	}
	if patch.Interval != nil && normalizeInterval(*patch.Interval) != existing.Interval {
		return true
	}
	return false
}

// applyPatch merges every non-nil patch field into the plan.
func applyPatch(p *models.Plan, patch PlanPatch, defaultCurrency string) {
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Amount != nil {
		p.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		p.Currency = normalizeCurrency(*patch.Currency, defaultCurrency)
	}
	if patch.Interval != nil {
		p.Interval = normalizeInterval(*patch.Interval)
	}
	if patch.IntervalCount != nil {
		p.IntervalCount = *patch.IntervalCount
	}
	if patch.FreeTrialDays != nil {
		p.FreeTrialDays = *patch.FreeTrialDays
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.Features != nil {
		p.Features = patch.Features
	}
}
