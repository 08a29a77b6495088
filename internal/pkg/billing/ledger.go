package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
)

// UserDirectory resolves users by id.
type UserDirectory interface {
	GetByID(id uint) (*models.User, error)
}

// Ledger records purchase attempts. A user holds at most one PENDING row at a time.
//
// There is no transaction spanning the payment intent request and the row write: if the
// write fails after the processor accepted the intent, the charge has no local row and
// the later succeeded event fails reconciliation with ErrNotFound.
type Ledger struct {
	repo    Repository
	proc    PaymentProcessor
	users   UserDirectory
	cfg     Config
	metrics *metrics.Collector
	now     func() time.Time
}

// NewLedger creates a subscription ledger. m may be nil.
func NewLedger(repo Repository, proc PaymentProcessor, users UserDirectory, cfg Config, m *metrics.Collector) *Ledger {
	return &Ledger{repo: repo, proc: proc, users: users, cfg: cfg, metrics: m, now: time.Now}
}

// StartPurchase requests a charge for the plan and records it as the user's pending
// row. An existing pending row is superseded: its transaction id is replaced and the
// earlier charge request abandoned. A pending row that settles before it is rewritten
// keeps its outcome and the purchase opens a new row. A concurrent first purchase of
// the same user loses the insert with ErrConflict.
func (l *Ledger) StartPurchase(ctx context.Context, userID, planID uint) (*PurchaseResult, error) {
	return l.startPurchase(ctx, userID, planID, 0)
}

// StartPurchaseWithRetry behaves like StartPurchase but resolves an insert conflict by
// re-reading the pending row that won and updating it once.
func (l *Ledger) StartPurchaseWithRetry(ctx context.Context, userID, planID uint) (*PurchaseResult, error) {
	return l.startPurchase(ctx, userID, planID, 1)
}

func (l *Ledger) startPurchase(ctx context.Context, userID, planID uint, retries int) (*PurchaseResult, error) {
	if _, err := l.users.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	plan, err := l.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	lifetime := plan.IsLifetime()
	pt := planType(lifetime)
	start := l.now().UTC()
	var end *time.Time
	if !lifetime {
		e, err := ComputeEndDate(start, plan.Interval, plan.IntervalCount)
		if err != nil {
			return nil, err
		}
		end = &e
	}

	intent, err := l.proc.CreatePaymentIntent(ctx, PaymentIntentInput{
		Amount:   MinorUnits(plan.Amount),
		Currency: normalizeCurrency(plan.Currency, l.cfg.currency()),
		Metadata: purchaseMetadata(userID, planID, lifetime),
	})
	if err != nil {
		l.metrics.Purchase(pt, metrics.OutcomeError)
		return nil, externalErr("create payment intent", err)
	}

	var sub *models.Subscription
	for attempt := 0; ; attempt++ {
		sub, err = l.writePending(ctx, userID, plan, intent.ID, start, end)
		if err == nil || !errors.Is(err, ErrConflict) || attempt >= retries {
			break
		}
		log.Infof("[Billing] Pending row of user %d created concurrently, retrying", userID)
	}
	if err != nil {
		l.metrics.Purchase(pt, metrics.OutcomeError)
		return nil, err
	}

	l.metrics.Purchase(pt, metrics.OutcomeOK)
	return &PurchaseResult{
		Subscription:    sub,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PlanType:        pt,
	}, nil
}

func (l *Ledger) writePending(ctx context.Context, userID uint, plan *models.Plan, paymentID string, start time.Time, end *time.Time) (*models.Subscription, error) {
	fill := func(sub *models.Subscription) {
		sub.PlanID = plan.ID
		sub.StartDate = start
		sub.EndDate = end
		sub.Amount = plan.Amount
		sub.StripePaymentID = paymentID
		sub.PaymentStatus = models.PaymentStatusPending
		sub.Description = plan.Description
	}

	sub, err := l.repo.FindPendingSubscription(ctx, userID)
	switch {
	case err == nil:
		fill(sub)
		updated, err := l.repo.UpdatePendingSubscription(ctx, sub)
		if err != nil {
			return nil, err
		}
		if updated {
			sub.SyncPendingOwner()
			return sub, nil
		}
		// settled between read and write, the next purchase gets its own row
		log.Infof("[Billing] Pending subscription %d of user %d settled concurrently, opening a new row", sub.ID, userID)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	sub = &models.Subscription{UserID: userID}
	fill(sub)
	if err := l.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Get returns the newest row of the user.
func (l *Ledger) Get(ctx context.Context, userID uint) (*models.Subscription, error) {
	return l.repo.GetLatestSubscription(ctx, userID)
}

func (l *Ledger) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	return l.repo.GetSubscription(ctx, id)
}

// ListAll returns every row newest first with user and plan attached.
func (l *Ledger) ListAll(ctx context.Context) ([]models.Subscription, error) {
	return l.repo.ListSubscriptions(ctx)
}

// AdminUpdate applies an operator change to a row without consulting the payment
// state machine. Legacy status names are accepted.
func (l *Ledger) AdminUpdate(ctx context.Context, id uint, patch SubscriptionPatch) (*models.Subscription, error) {
	if err := validateInput(patch); err != nil {
		return nil, err
	}
	var status models.PaymentStatus
	if patch.PaymentStatus != nil {
		s, ok := models.ParsePaymentStatus(*patch.PaymentStatus)
		if !ok {
			return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, *patch.PaymentStatus)
		}
		status = s
	}

	sub, err := l.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.PlanID != nil && *patch.PlanID != sub.PlanID {
		if _, err := l.repo.GetPlan(ctx, *patch.PlanID); err != nil {
			return nil, err
		}
		sub.PlanID = *patch.PlanID
	}
	if patch.StartDate != nil {
		sub.StartDate = patch.StartDate.UTC()
	}
	if patch.ClearEndDate {
		sub.EndDate = nil
	} else if patch.EndDate != nil {
		end := patch.EndDate.UTC()
		sub.EndDate = &end
	}
	if patch.Amount != nil {
		sub.Amount = *patch.Amount
	}
	if patch.StripePaymentID != nil {
		sub.StripePaymentID = *patch.StripePaymentID
	}
	if status != "" {
		sub.PaymentStatus = status
	}
	if patch.Description != nil {
		sub.Description = *patch.Description
	}
	if patch.Benefits != nil {
		sub.Benefits = *patch.Benefits
	}
	sub.User, sub.Plan = nil, nil

	if err := l.repo.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Subscription %d updated by admin (status %s)", sub.ID, sub.PaymentStatus)
	return l.repo.GetSubscription(ctx, id)
}

func (l *Ledger) Delete(ctx context.Context, id uint) error {
	return l.repo.DeleteSubscription(ctx, id)
}
