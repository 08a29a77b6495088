package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
)

// Catalog manages plans and keeps each one mirrored as a processor product/price pair.
type Catalog struct {
	repo    Repository
	proc    PaymentProcessor
	cfg     Config
	metrics *metrics.Collector
}

// NewCatalog creates a plan catalog. m may be nil.
func NewCatalog(repo Repository, proc PaymentProcessor, cfg Config, m *metrics.Collector) *Catalog {
	return &Catalog{repo: repo, proc: proc, cfg: cfg, metrics: m}
}

// CreatePlan validates spec, creates the processor product and price and stores the plan.
// Lifetime plans get a one-time price. When the price request fails the product created
// just before stays behind in the processor; its id is logged.
func (c *Catalog) CreatePlan(ctx context.Context, spec PlanSpec) (plan *models.Plan, err error) {
	defer func() { c.metrics.PlanOperation("create", err) }()

	if err := validateInput(spec); err != nil {
		return nil, err
	}
	intervalCount := 1
	if spec.IntervalCount != nil {
		intervalCount = *spec.IntervalCount
	}

	plan = &models.Plan{
		Name:          strings.TrimSpace(spec.Name),
		Description:   spec.Description,
		Amount:        spec.Amount,
		Currency:      normalizeCurrency(spec.Currency, c.cfg.currency()),
		Interval:      normalizeInterval(spec.Interval),
		IntervalCount: intervalCount,
		FreeTrialDays: spec.FreeTrialDays,
		Active:        true,
		Features:      spec.Features,
	}
	if spec.Active != nil {
		plan.Active = *spec.Active
	}

	// the processor product stays active, availability is a local flag
	productID, err := c.proc.CreateProduct(ctx, ProductInput{
		Name:        plan.Name,
		Description: plan.Description,
		Active:      true,
	})
	if err != nil {
		return nil, externalErr("create product", err)
	}

	priceID, err := c.proc.CreatePrice(ctx, priceFor(productID, plan))
	if err != nil {
		log.Warnf("[Billing] Price creation for plan %q failed, product %s is orphaned: %v", plan.Name, productID, err)
		return nil, externalErr("create price", err)
	}

	plan.StripeProductID = productID
	plan.StripePriceID = priceID
	if err := c.repo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Created plan %d (%s, %s)", plan.ID, plan.Name, planType(plan.IsLifetime()))
	return plan, nil
}

// UpdatePlan merges patch into the stored plan. A pricing change mints a new price on
// the (possibly recreated) product and retires the previous one.
func (c *Catalog) UpdatePlan(ctx context.Context, id uint, patch PlanPatch) (plan *models.Plan, err error) {
	defer func() { c.metrics.PlanOperation("update", err) }()

	if err := validateInput(patch); err != nil {
		return nil, err
	}
	plan, err = c.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	mergedName, mergedInterval := plan.Name, plan.Interval
	if patch.Name != nil {
		mergedName = strings.TrimSpace(*patch.Name)
	}
	if patch.Interval != nil {
		mergedInterval = normalizeInterval(*patch.Interval)
	}
	lifetime := models.IsLifetimePlan(mergedName, mergedInterval)
	currency := c.cfg.currency()

	productRecreated := false
	if err := c.proc.GetProduct(ctx, plan.StripeProductID); err != nil {
		if !errors.Is(err, ErrResourceMissing) {
			return nil, externalErr("get product", err)
		}
		description := plan.Description
		if patch.Description != nil {
			description = *patch.Description
		}
		productID, err := c.proc.CreateProduct(ctx, ProductInput{Name: mergedName, Description: description, Active: true})
		if err != nil {
			return nil, externalErr("recreate product", err)
		}
		log.Warnf("[Billing] Product %s of plan %d was missing, recreated as %s", plan.StripeProductID, plan.ID, productID)
		plan.StripeProductID = productID
		productRecreated = true
	}

	// a recreated product owns no price yet
	repriced := pricingChanged(plan, patch, lifetime, currency) || productRecreated
	applyPatch(plan, patch, currency)

	if repriced {
		priceID, err := c.proc.CreatePrice(ctx, priceFor(plan.StripeProductID, plan))
		if err != nil {
			return nil, externalErr("create price", err)
		}
		if old := plan.StripePriceID; old != "" {
			if err := c.proc.DeactivatePrice(ctx, old); err != nil {
				if !errors.Is(err, ErrResourceMissing) {
					return nil, externalErr("deactivate price", err)
				}
				log.Infof("[Billing] Price %s of plan %d already gone", old, plan.ID)
			}
		}
		plan.StripePriceID = priceID
	}

	if err := c.repo.SavePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// DeletePlan retires the processor price and product on a best-effort basis and
// removes the local plan.
func (c *Catalog) DeletePlan(ctx context.Context, id uint) (err error) {
	defer func() { c.metrics.PlanOperation("delete", err) }()

	plan, err := c.repo.GetPlan(ctx, id)
	if err != nil {
		return err
	}
	if plan.StripePriceID != "" {
		if err := c.proc.DeactivatePrice(ctx, plan.StripePriceID); err != nil {
			log.Warnf("[Billing] Could not deactivate price %s of plan %d: %v", plan.StripePriceID, id, err)
		}
	}
	if plan.StripeProductID != "" {
		if err := c.proc.DeactivateProduct(ctx, plan.StripeProductID); err != nil {
			log.Warnf("[Billing] Could not deactivate product %s of plan %d: %v", plan.StripeProductID, id, err)
		}
	}
	return c.repo.DeletePlan(ctx, id)
}

func (c *Catalog) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return c.repo.ListPlans(ctx)
}

func (c *Catalog) GetPlan(ctx context.Context, id uint) (*models.Plan, error) {
	return c.repo.GetPlan(ctx, id)
}
