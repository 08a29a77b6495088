package controllers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
)

const stripeSignatureHeader = "Stripe-Signature"

// EventParser verifies and projects inbound processor notifications.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*billing.PaymentEvent, error)
}

// EventProcessor runs a verified event through reconciliation.
type EventProcessor interface {
	Process(ctx context.Context, ev *billing.PaymentEvent, payload []byte) error
}

// BillingController receives payment processor webhooks.
type BillingController struct {
	parser    EventParser
	processor EventProcessor
}

// NewBillingController creates the webhook controller
func NewBillingController(parser EventParser, processor EventProcessor) *BillingController {
	return &BillingController{parser: parser, processor: processor}
}

// HandleStripeWebhook verifies the signature, then reconciles the event. Any failure
// after verification is answered with a generic 500 so Stripe redelivers.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	signature := strings.TrimSpace(c.Get(stripeSignatureHeader))
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing signature"})
	}

	payload := append([]byte(nil), c.Body()...)
	ev, err := bc.parser.ParseEvent(payload, signature)
	if err != nil {
		log.Warnf("[Webhook] Rejected Stripe event: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid webhook payload"})
	}

	if err := bc.processor.Process(c.UserContext(), ev, payload); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": billing.ErrWebhookProcessing.Error()})
	}
	return c.JSON(fiber.Map{"received": true})
}
