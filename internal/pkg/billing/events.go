package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// EventType is the processor's declared event type.
type EventType string

const (
	EventChargeSucceeded   EventType = "payment_intent.succeeded"
	EventChargeFailed      EventType = "payment_intent.payment_failed"
	EventCheckoutCompleted EventType = "checkout.session.completed"
)

// Known reports whether the engine acts on events of this type.
func (t EventType) Known() bool {
	switch t {
	case EventChargeSucceeded, EventChargeFailed, EventCheckoutCompleted:
		return true
	}
	return false
}

// Metadata keys attached to every payment intent created by the ledger.
const (
	MetaUserID   = "userId"
	MetaPlanID   = "planId"
	MetaPlanType = "planType"
)

const chargeStatusSucceeded = "succeeded"

// PaymentEvent is the typed projection of an inbound processor event.
type PaymentEvent struct {
	ID            string
	Type          EventType
	TransactionID string
	Status        string
	Amount        int64
	Metadata      map[string]string
	// Purchase is the leniently parsed Metadata. Nil when the event carried none.
	Purchase *PurchaseMetadata
}

// PurchaseMetadata is the validated form of the metadata map the ledger attaches to
// charge requests.
type PurchaseMetadata struct {
	UserID   uint
	PlanID   uint
	PlanType string
}

// IsLifetime reports whether the metadata marks a lifetime purchase.
func (m *PurchaseMetadata) IsLifetime() bool {
	return m != nil && m.PlanType == PlanTypeLifetime
}

// purchaseMetadata builds the metadata map sent with a payment intent.
func purchaseMetadata(userID, planID uint, lifetime bool) map[string]string {
	return map[string]string{
		MetaUserID:   strconv.FormatUint(uint64(userID), 10),
		MetaPlanID:   strconv.FormatUint(uint64(planID), 10),
		MetaPlanType: planType(lifetime),
	}
}

// ParsePurchaseMetadata validates the metadata map of an event. Missing or malformed
// user/plan ids fail with ErrInvalidState.
func ParsePurchaseMetadata(meta map[string]string) (*PurchaseMetadata, error) {
	out := &PurchaseMetadata{PlanType: strings.ToLower(strings.TrimSpace(meta[MetaPlanType]))}

	userID, err := parseID(meta, MetaUserID)
	if err != nil {
		return nil, err
	}
	planID, err := parseID(meta, MetaPlanID)
	if err != nil {
		return nil, err
	}
	out.UserID = userID
	out.PlanID = planID
	return out, nil
}

func parseID(meta map[string]string, key string) (uint, error) {
	raw := strings.TrimSpace(meta[key])
	if raw == "" {
		return 0, fmt.Errorf("%w: metadata key %q missing", ErrInvalidState, key)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: metadata key %q is not a valid id", ErrInvalidState, key)
	}
	return uint(id), nil
}

// projectMetadata is lenient: charge events are matched by transaction id, so the
// metadata is informational there. Handlers that depend on it re-parse Metadata strictly.
func projectMetadata(meta map[string]string) *PurchaseMetadata {
	if len(meta) == 0 {
		return nil
	}
	pm, err := ParsePurchaseMetadata(meta)
	if err != nil {
		return &PurchaseMetadata{PlanType: strings.ToLower(strings.TrimSpace(meta[MetaPlanType]))}
	}
	return pm
}
