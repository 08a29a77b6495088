package models

import "time"

const BillingProviderStripe = "stripe"

// BillingWebhookEvent journals every verified provider event. The unique
// (provider, provider_event_id) pair lets redeliveries of an already handled
// event be acknowledged without running the handlers again.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	TransactionID   string     `gorm:"type:varchar(191);default:'';index" json:"transaction_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Handled reports whether a previous attempt completed without error.
func (e *BillingWebhookEvent) Handled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
