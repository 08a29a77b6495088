package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProcessor implements PaymentProcessor on the Stripe API.
type StripeProcessor struct {
	webhookSecret string
}

// NewStripeProcessor configures the Stripe client from cfg.
func NewStripeProcessor(cfg Config) *StripeProcessor {
	stripe.Key = cfg.StripeSecretKey
	return &StripeProcessor{webhookSecret: cfg.StripeWebhookSecret}
}

func (p *StripeProcessor) CreateProduct(_ context.Context, in ProductInput) (string, error) {
	params := &stripe.ProductParams{
		Name:   stripe.String(in.Name),
		Active: stripe.Bool(in.Active),
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	params.SetIdempotencyKey(uuid.NewString())

	prod, err := product.New(params)
	if err != nil {
		return "", classifyStripeErr(err)
	}
	return prod.ID, nil
}

func (p *StripeProcessor) GetProduct(_ context.Context, productID string) error {
	if productID == "" {
		return ErrResourceMissing
	}
	if _, err := product.Get(productID, nil); err != nil {
		return classifyStripeErr(err)
	}
	return nil
}

func (p *StripeProcessor) CreatePrice(_ context.Context, in PriceInput) (string, error) {
	params := stripePriceParams(in)
	params.SetIdempotencyKey(uuid.NewString())

	pr, err := price.New(params)
	if err != nil {
		return "", classifyStripeErr(err)
	}
	return pr.ID, nil
}

func (p *StripeProcessor) DeactivatePrice(_ context.Context, priceID string) error {
	if priceID == "" {
		return ErrResourceMissing
	}
	_, err := price.Update(priceID, &stripe.PriceParams{Active: stripe.Bool(false)})
	return classifyStripeErr(err)
}

func (p *StripeProcessor) DeactivateProduct(_ context.Context, productID string) error {
	if productID == "" {
		return ErrResourceMissing
	}
	_, err := product.Update(productID, &stripe.ProductParams{Active: stripe.Bool(false)})
	return classifyStripeErr(err)
}

func (p *StripeProcessor) CreatePaymentIntent(_ context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
		Metadata: in.Metadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, classifyStripeErr(err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ParseEvent verifies the Stripe-Signature header and projects the event onto a
// PaymentEvent.
func (p *StripeProcessor) ParseEvent(payload []byte, signature string) (*PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("billing: webhook signature verification failed: %w", err)
	}
	return projectStripeEvent(ev)
}

func stripePriceParams(in PriceInput) *stripe.PriceParams {
	params := &stripe.PriceParams{
		Currency:   stripe.String(in.Currency),
		UnitAmount: stripe.Int64(in.UnitAmount),
		Active:     stripe.Bool(true),
		Product:    stripe.String(in.ProductID),
	}
	if in.Recurring != nil {
		params.Recurring = &stripe.PriceRecurringParams{
			Interval:      stripe.String(in.Recurring.Interval),
			IntervalCount: stripe.Int64(in.Recurring.IntervalCount),
		}
	}
	return params
}

func projectStripeEvent(ev stripe.Event) (*PaymentEvent, error) {
	out := &PaymentEvent{ID: ev.ID, Type: EventType(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventChargeSucceeded, EventChargeFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: parse payment intent: %v", ErrInvalidState, err)
		}
		out.TransactionID = pi.ID
		out.Status = string(pi.Status)
		out.Amount = pi.Amount
		out.Metadata = pi.Metadata
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: parse checkout session: %v", ErrInvalidState, err)
		}
		if cs.PaymentIntent != nil {
			out.TransactionID = cs.PaymentIntent.ID
		}
		out.Status = string(cs.PaymentStatus)
		out.Amount = cs.AmountTotal
		out.Metadata = cs.Metadata
	}
	out.Purchase = projectMetadata(out.Metadata)
	return out, nil
}

func classifyStripeErr(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrResourceMissing, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %w", ErrExternalService, err)
}
