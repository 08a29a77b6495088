package billing

import "github.com/ManuelReschke/PayLedger/app/models"

// paymentTransitions lists every status change the payment flow may apply.
// PAID and FAILED are terminal.
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending: {models.PaymentStatusPaid, models.PaymentStatusFailed},
}

// checkTransition reports whether from -> to must be applied. A transition into the
// state the row already holds returns apply=false and no error so redelivered events
// are acknowledged without touching the row again.
func checkTransition(from, to models.PaymentStatus) (apply bool, err error) {
	if from == to {
		return false, nil
	}
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true, nil
		}
	}
	return false, &TransitionError{From: from, To: to}
}
