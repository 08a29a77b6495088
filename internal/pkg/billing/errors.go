package billing

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/PayLedger/app/models"
)

var (
	// ErrNotFound reports a referenced plan, subscription or user that does not exist.
	ErrNotFound = errors.New("billing: not found")
	// ErrInvalidState reports event content inconsistent with its declared type,
	// or a transition the ledger does not allow.
	ErrInvalidState = errors.New("billing: invalid state")
	// ErrUnsupportedInterval is returned by ComputeEndDate for lifetime or unknown intervals.
	ErrUnsupportedInterval = errors.New("billing: unsupported interval")
	// ErrConflict reports a uniqueness violation, e.g. a concurrent pending-row insert.
	ErrConflict = errors.New("billing: conflict")
	// ErrExternalService wraps payment processor failures.
	ErrExternalService = errors.New("billing: payment processor request failed")
	// ErrResourceMissing classifies processor errors for objects that are already gone.
	ErrResourceMissing = errors.New("billing: processor resource missing")
	// ErrValidation reports rejected catalog input.
	ErrValidation = errors.New("billing: validation failed")
	// ErrWebhookProcessing is the only error the webhook boundary surfaces.
	ErrWebhookProcessing = errors.New("webhook processing failed")
)

// TransitionError describes a payment status change the state machine rejected.
type TransitionError struct {
	From models.PaymentStatus
	To   models.PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("billing: no transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}

// externalErr tags a processor failure with the operation and makes sure it is
// classified as ErrExternalService unless the processor already classified it.
func externalErr(op string, err error) error {
	if errors.Is(err, ErrResourceMissing) || errors.Is(err, ErrExternalService) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExternalService, err)
}
