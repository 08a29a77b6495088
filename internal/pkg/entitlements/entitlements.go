package entitlements

import (
	"time"

	"github.com/ManuelReschke/PayLedger/app/models"
)

type Kind string

const (
	KindNone         Kind = "none"
	KindSubscription Kind = "subscription"
	KindLifetime     Kind = "lifetime"
)

// Entitlement is the read model of a user's access derived from the entitlement pair
// reconciliation writes onto the user.
type Entitlement struct {
	UserID       uint       `json:"user_id"`
	IsSubscribed bool       `json:"is_subscribed"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// FromUser projects the user's entitlement fields.
func FromUser(u *models.User) Entitlement {
	if u == nil {
		return Entitlement{}
	}
	return Entitlement{UserID: u.ID, IsSubscribed: u.IsSubscribed, ExpiresAt: u.PlanExpiration}
}

// IsLifetime reports a subscribed user without expiration.
func (e Entitlement) IsLifetime() bool {
	return e.IsSubscribed && e.ExpiresAt == nil
}

// IsActive reports whether access is granted at now. The expiration instant itself is
// already outside the entitlement.
func (e Entitlement) IsActive(now time.Time) bool {
	if !e.IsSubscribed {
		return false
	}
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

func (e Entitlement) Kind(now time.Time) Kind {
	switch {
	case !e.IsActive(now):
		return KindNone
	case e.IsLifetime():
		return KindLifetime
	default:
		return KindSubscription
	}
}
