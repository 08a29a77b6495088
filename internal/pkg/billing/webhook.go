package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
)

// RecordWebhookEvent persists webhook payloads idempotently.
func (e *Engine) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		TransactionID:   strings.TrimSpace(in.TransactionID),
		PayloadJSON:     in.PayloadJSON,
	}
	return e.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (e *Engine) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return e.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

// Process journals a verified event and runs its handler. A redelivery of an event
// that was already handled successfully is acknowledged without running it again.
// Whatever goes wrong, the caller only ever sees ErrWebhookProcessing; the detail is
// logged and kept on the journal row.
func (e *Engine) Process(ctx context.Context, ev *PaymentEvent, payload []byte) error {
	eventType := string(ev.Type)

	created, stored, err := e.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       eventType,
		TransactionID:   ev.TransactionID,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		log.Errorf("[Webhook] Could not journal event %s: %v", ev.ID, err)
		e.metrics.WebhookEvent(eventType, metrics.OutcomeError)
		return ErrWebhookProcessing
	}
	if !created && stored.Handled() {
		log.Infof("[Webhook] Event %s already handled, acknowledging", ev.ID)
		e.metrics.WebhookEvent(eventType, metrics.OutcomeDuplicate)
		return nil
	}

	handleErr := e.HandleEvent(ctx, ev)
	if err := e.MarkWebhookProcessed(context.WithoutCancel(ctx), stored.ID, handleErr); err != nil {
		log.Errorf("[Webhook] Could not mark event %s processed: %v", ev.ID, err)
	}
	if handleErr != nil {
		log.Errorf("[Webhook] Event %s (%s) failed: %v", ev.ID, eventType, handleErr)
		e.metrics.WebhookEvent(eventType, metrics.OutcomeError)
		return ErrWebhookProcessing
	}
	if !ev.Type.Known() {
		e.metrics.WebhookEvent(eventType, metrics.OutcomeIgnored)
		return nil
	}
	e.metrics.WebhookEvent(eventType, metrics.OutcomeOK)
	return nil
}
