package models

import (
	"strings"
	"time"
)

// PaymentStatus is the canonical status of a subscription ledger row.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// ParsePaymentStatus maps a status string onto the canonical enum. Older rows and
// admin tooling used COMPLETED/CANCELED for the same states, so those are folded in.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return PaymentStatusPending, true
	case "PAID", "COMPLETED":
		return PaymentStatusPaid, true
	case "FAILED", "CANCELED", "CANCELLED":
		return PaymentStatusFailed, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no payment-flow transition leaves this status.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// Subscription is one purchase attempt of a user and its terminal outcome.
type Subscription struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	UserID          uint          `gorm:"not null;index" json:"user_id"`
	PlanID          uint          `gorm:"not null;index:idx_billing_subscriptions_user_plan_status,priority:2;index" json:"plan_id"`
	StartDate       time.Time     `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate         *time.Time    `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	Amount          float64       `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	StripePaymentID string        `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_subscriptions_payment" json:"stripe_payment_id"`
	PaymentStatus   PaymentStatus `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_billing_subscriptions_user_plan_status,priority:3" json:"payment_status"`
	// PendingUserID mirrors UserID only while the row is PENDING. The unique index
	// rejects a second pending row for the same user; NULLs do not collide.
	PendingUserID *uint     `gorm:"uniqueIndex:ux_billing_subscriptions_pending_user;index:idx_billing_subscriptions_user_plan_status,priority:1" json:"-"`
	Description   string    `gorm:"type:text" json:"description,omitempty"`
	Benefits      string    `gorm:"type:text" json:"benefits,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Plan *Plan `gorm:"foreignKey:PlanID;constraint:OnDelete:RESTRICT" json:"plan,omitempty"`
}

func (Subscription) TableName() string {
	return "billing_subscriptions"
}

// PendingOwner returns the value the pending-user index column must hold for the
// given owner and status.
func PendingOwner(userID uint, status PaymentStatus) *uint {
	if status != PaymentStatusPending {
		return nil
	}
	id := userID
	return &id
}

// SyncPendingOwner sets PendingUserID from the current owner and status. Callers
// must invoke it before every Create/Save.
func (s *Subscription) SyncPendingOwner() {
	s.PendingUserID = PendingOwner(s.UserID, s.PaymentStatus)
}
