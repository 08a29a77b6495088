package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
)

// Locker hands out short leases on a key. TryLock returns ok=false when another
// holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Engine applies processor events to the ledger and the user's entitlement.
type Engine struct {
	repo    Repository
	locker  Locker
	cfg     Config
	metrics *metrics.Collector
	now     func() time.Time
}

// NewEngine creates a reconciliation engine. locker and m may be nil; without a locker
// concurrent redeliveries rely on the conditional row updates alone.
func NewEngine(repo Repository, locker Locker, cfg Config, m *metrics.Collector) *Engine {
	return &Engine{repo: repo, locker: locker, cfg: cfg, metrics: m, now: time.Now}
}

// HandleEvent dispatches ev on its type. Unknown types are logged and ignored.
func (e *Engine) HandleEvent(ctx context.Context, ev *PaymentEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidState)
	}
	switch ev.Type {
	case EventChargeSucceeded:
		return e.withLease(ctx, ev.TransactionID, func() error { return e.chargeSucceeded(ctx, ev) })
	case EventChargeFailed:
		return e.withLease(ctx, ev.TransactionID, func() error { return e.chargeFailed(ctx, ev) })
	case EventCheckoutCompleted:
		return e.withLease(ctx, ev.TransactionID, func() error { return e.checkoutCompleted(ctx, ev) })
	default:
		log.Infof("[Billing] Ignoring event %s of type %s", ev.ID, ev.Type)
		return nil
	}
}

func (e *Engine) withLease(ctx context.Context, transactionID string, fn func() error) error {
	if e.locker == nil || transactionID == "" {
		return fn()
	}
	key := "billing:tx:" + transactionID
	token, ok, err := e.locker.TryLock(ctx, key, e.cfg.lockTTL())
	if err != nil {
		return fmt.Errorf("lock transaction %s: %w", transactionID, err)
	}
	if !ok {
		return fmt.Errorf("transaction %s is being processed: %w", transactionID, ErrConflict)
	}
	defer func() {
		if err := e.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warnf("[Billing] Could not release lease %s: %v", key, err)
		}
	}()
	return fn()
}

func (e *Engine) chargeSucceeded(ctx context.Context, ev *PaymentEvent) error {
	if ev.TransactionID == "" {
		return fmt.Errorf("%w: %s event %s without transaction id", ErrInvalidState, ev.Type, ev.ID)
	}
	sub, err := e.repo.GetSubscriptionByPaymentID(ctx, ev.TransactionID)
	if err != nil {
		return err
	}
	if ev.Status != chargeStatusSucceeded {
		return fmt.Errorf("%w: %s event %s carries status %q", ErrInvalidState, ev.Type, ev.ID, ev.Status)
	}

	apply, err := checkTransition(sub.PaymentStatus, models.PaymentStatusPaid)
	if err != nil {
		log.Warnf("[Billing] Subscription %d is %s, keeping it despite succeeded event %s", sub.ID, sub.PaymentStatus, ev.ID)
		return nil
	}
	if !apply {
		log.Infof("[Billing] Subscription %d already paid, event %s acknowledged", sub.ID, ev.ID)
		return nil
	}

	plan, err := e.repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	start := e.now().UTC()
	var end *time.Time
	if !plan.IsLifetime() {
		computed, err := ComputeEndDate(start, plan.Interval, plan.IntervalCount)
		if err != nil {
			return err
		}
		end = &computed
	}

	if err := e.repo.MarkPaid(ctx, sub.ID, sub.UserID, start, end); err != nil {
		if isTransitionErr(err) {
			log.Warnf("[Billing] Subscription %d changed concurrently, succeeded event %s not applied: %v", sub.ID, ev.ID, err)
			return nil
		}
		return err
	}
	log.Infof("[Billing] Subscription %d of user %d paid via %s", sub.ID, sub.UserID, ev.TransactionID)
	return nil
}

func (e *Engine) chargeFailed(ctx context.Context, ev *PaymentEvent) error {
	if ev.TransactionID == "" {
		return fmt.Errorf("%w: %s event %s without transaction id", ErrInvalidState, ev.Type, ev.ID)
	}
	sub, err := e.repo.GetSubscriptionByPaymentID(ctx, ev.TransactionID)
	if err != nil {
		return err
	}

	apply, err := checkTransition(sub.PaymentStatus, models.PaymentStatusFailed)
	if err != nil {
		log.Warnf("[Billing] Subscription %d is %s, ignoring failed event %s", sub.ID, sub.PaymentStatus, ev.ID)
		return nil
	}
	if !apply {
		return nil
	}

	if err := e.repo.MarkFailed(ctx, sub.ID, e.now().UTC()); err != nil {
		if isTransitionErr(err) {
			log.Warnf("[Billing] Subscription %d changed concurrently, failed event %s not applied: %v", sub.ID, ev.ID, err)
			return nil
		}
		return err
	}
	log.Infof("[Billing] Subscription %d of user %d failed via %s", sub.ID, sub.UserID, ev.TransactionID)
	return nil
}

func (e *Engine) checkoutCompleted(ctx context.Context, ev *PaymentEvent) error {
	if !ev.Purchase.IsLifetime() {
		log.Infof("[Billing] Checkout %s is not a lifetime purchase, ignoring", ev.ID)
		return nil
	}
	purchase, err := ParsePurchaseMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	if ev.TransactionID == "" {
		return fmt.Errorf("%w: checkout %s without payment intent", ErrInvalidState, ev.ID)
	}

	moved, err := e.repo.CompletePendingLifetime(ctx, purchase.UserID, purchase.PlanID, ev.TransactionID)
	if err != nil {
		return err
	}
	log.Infof("[Billing] Lifetime checkout %s: %d pending row(s) of user %d paid", ev.ID, moved, purchase.UserID)
	return nil
}

// isTransitionErr reports whether err came from the payment state machine.
func isTransitionErr(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
