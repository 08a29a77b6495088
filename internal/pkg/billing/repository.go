package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PayLedger/app/models"
)

// Repository provides DB operations used by the billing core.
type Repository interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id uint) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	SavePlan(ctx context.Context, plan *models.Plan) error
	DeletePlan(ctx context.Context, id uint) error

	FindPendingSubscription(ctx context.Context, userID uint) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	// UpdatePendingSubscription rewrites the purchase fields of a row only while it is
	// still PENDING. It reports false when the row has settled since it was read.
	UpdatePendingSubscription(ctx context.Context, sub *models.Subscription) (bool, error)
	GetSubscription(ctx context.Context, id uint) (*models.Subscription, error)
	GetLatestSubscription(ctx context.Context, userID uint) (*models.Subscription, error)
	GetSubscriptionByPaymentID(ctx context.Context, paymentID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	DeleteSubscription(ctx context.Context, id uint) error

	// MarkPaid moves a PENDING row to PAID and grants the user's entitlement in one
	// transaction. A row that is already PAID is left untouched and reports no error.
	MarkPaid(ctx context.Context, subID, userID uint, start time.Time, end *time.Time) error
	// MarkFailed moves a PENDING row to FAILED. Terminal rows are left untouched.
	MarkFailed(ctx context.Context, subID uint, end time.Time) error
	// CompletePendingLifetime marks every PENDING row of (user, plan) PAID with the
	// given transaction id and grants a non-expiring entitlement.
	CompletePendingLifetime(ctx context.Context, userID, planID uint, paymentID string) (int64, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM. The handle must be opened
// with TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	default:
		return err
	}
}

func (r *gormRepository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	return translate(r.db.WithContext(ctx).Create(plan).Error, "plan")
}

func (r *gormRepository) GetPlan(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("plan %d", id))
	}
	return &plan, nil
}

func (r *gormRepository) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) SavePlan(ctx context.Context, plan *models.Plan) error {
	return translate(r.db.WithContext(ctx).Save(plan).Error, "plan")
}

func (r *gormRepository) DeletePlan(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).Delete(&models.Plan{}, id)
	if tx.Error != nil {
		return translate(tx.Error, fmt.Sprintf("plan %d", id))
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *gormRepository) FindPendingSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND payment_status = ?", userID, models.PaymentStatusPending).
		First(&sub).Error
	if err != nil {
		return nil, translate(err, "pending subscription")
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.SyncPendingOwner()
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(sub).Error, "subscription")
}

func (r *gormRepository) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.SyncPendingOwner()
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(sub).Error, "subscription")
}

func (r *gormRepository) UpdatePendingSubscription(ctx context.Context, sub *models.Subscription) (bool, error) {
	var endValue any
	if sub.EndDate != nil {
		endValue = *sub.EndDate
	}
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND payment_status = ?", sub.ID, models.PaymentStatusPending).
		Updates(map[string]any{
			"plan_id":           sub.PlanID,
			"start_date":        sub.StartDate,
			"end_date":          endValue,
			"amount":            sub.Amount,
			"stripe_payment_id": sub.StripePaymentID,
			"description":       sub.Description,
		})
	if res.Error != nil {
		return false, translate(res.Error, "subscription")
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) GetSubscription(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Preload("User").Preload("Plan").First(&sub, id).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("subscription %d", id))
	}
	return &sub, nil
}

func (r *gormRepository) GetLatestSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Preload("User").Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		First(&sub).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("subscription of user %d", userID))
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByPaymentID(ctx context.Context, paymentID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("stripe_payment_id = ?", paymentID).First(&sub).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("subscription for payment %s", paymentID))
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Preload("User").Preload("Plan").
		Order("created_at DESC").Order("id DESC").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) DeleteSubscription(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).Delete(&models.Subscription{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	return nil
}

// transitionPending applies a conditional PENDING -> to update. When no row moved it
// re-reads the row so the caller can tell a redelivery from a forbidden transition.
func transitionPending(tx *gorm.DB, subID uint, to models.PaymentStatus, updates map[string]any) (bool, error) {
	updates["payment_status"] = to
	updates["pending_user_id"] = nil
	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND payment_status = ?", subID, models.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error, "subscription")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var current models.Subscription
	if err := tx.Select("id", "payment_status").First(&current, subID).Error; err != nil {
		return false, translate(err, fmt.Sprintf("subscription %d", subID))
	}
	if _, err := checkTransition(current.PaymentStatus, to); err != nil {
		return false, err
	}
	return false, nil
}

func grantEntitlement(tx *gorm.DB, userID uint, expiration *time.Time) error {
	var user models.User
	if err := tx.Select("id").First(&user, userID).Error; err != nil {
		return translate(err, fmt.Sprintf("user %d", userID))
	}
	var exp any
	if expiration != nil {
		exp = *expiration
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"is_subscribed":   true,
		"plan_expiration": exp,
	}).Error
}

func (r *gormRepository) MarkPaid(ctx context.Context, subID, userID uint, start time.Time, end *time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var endValue any
		if end != nil {
			endValue = *end
		}
		moved, err := transitionPending(tx, subID, models.PaymentStatusPaid, map[string]any{
			"start_date": start,
			"end_date":   endValue,
		})
		if err != nil || !moved {
			return err
		}
		return grantEntitlement(tx, userID, end)
	})
}

func (r *gormRepository) MarkFailed(ctx context.Context, subID uint, end time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := transitionPending(tx, subID, models.PaymentStatusFailed, map[string]any{
			"end_date": end,
		})
		return err
	})
}

func (r *gormRepository) CompletePendingLifetime(ctx context.Context, userID, planID uint, paymentID string) (int64, error) {
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subscription{}).
			Where("user_id = ? AND plan_id = ? AND payment_status = ?", userID, planID, models.PaymentStatusPending).
			Updates(map[string]any{
				"payment_status":    models.PaymentStatusPaid,
				"stripe_payment_id": paymentID,
				"pending_user_id":   nil,
				"end_date":          nil,
			})
		if res.Error != nil {
			return translate(res.Error, "subscription")
		}
		moved = res.RowsAffected
		return grantEntitlement(tx, userID, nil)
	})
	return moved, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(map[string]any{
		"processed_at":     &now,
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + 1"),
	}).Error
}
