package billing

import (
	"time"

	"github.com/ManuelReschke/PayLedger/app/models"
)

// PurchaseResult is what StartPurchase hands back to the buyer's client.
type PurchaseResult struct {
	Subscription    *models.Subscription `json:"subscription"`
	ClientSecret    string               `json:"clientSecret"`
	PaymentIntentID string               `json:"paymentIntentId"`
	PlanType        string               `json:"planType"`
}

// SubscriptionPatch is an administrative update of a ledger row. Nil fields are left
// untouched; ClearEndDate removes the end date.
type SubscriptionPatch struct {
	PlanID          *uint      `json:"plan_id" validate:"omitnil,gt=0"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	ClearEndDate    bool       `json:"clear_end_date"`
	Amount          *float64   `json:"amount" validate:"omitnil,gte=0"`
	StripePaymentID *string    `json:"stripe_payment_id" validate:"omitnil,min=1,max=191"`
	PaymentStatus   *string    `json:"payment_status"`
	Description     *string    `json:"description"`
	Benefits        *string    `json:"benefits"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	TransactionID   string
	PayloadJSON     string
}
