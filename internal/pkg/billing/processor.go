package billing

import "context"

// ProductInput describes a processor product mirroring a plan.
type ProductInput struct {
	Name        string
	Description string
	Active      bool
}

// Recurrence is the recurring part of a price. Nil for one-time prices.
type Recurrence struct {
	Interval      string
	IntervalCount int64
}

// PriceInput describes a processor price. Prices are immutable once created.
type PriceInput struct {
	ProductID  string
	Currency   string
	UnitAmount int64
	Recurring  *Recurrence
}

// PaymentIntentInput requests a charge in minor units.
type PaymentIntentInput struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// PaymentIntent is the processor's answer to a charge request.
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// PaymentProcessor is the subset of the payment processor API the billing core uses.
// Implementations return errors wrapping ErrResourceMissing when the referenced
// object does not exist.
type PaymentProcessor interface {
	CreateProduct(ctx context.Context, in ProductInput) (string, error)
	GetProduct(ctx context.Context, productID string) error
	CreatePrice(ctx context.Context, in PriceInput) (string, error)
	DeactivatePrice(ctx context.Context, priceID string) error
	DeactivateProduct(ctx context.Context, productID string) error
	CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error)
	// ParseEvent verifies an inbound webhook signature and projects the payload.
	ParseEvent(payload []byte, signature string) (*PaymentEvent, error)
}
