package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
	"github.com/ManuelReschke/PayLedger/internal/pkg/usercontext"
)

// SubscriptionService is the ledger surface the subscription endpoints need.
// *billing.Ledger satisfies it.
type SubscriptionService interface {
	StartPurchaseWithRetry(ctx context.Context, userID, planID uint) (*billing.PurchaseResult, error)
	Get(ctx context.Context, userID uint) (*models.Subscription, error)
	GetByID(ctx context.Context, id uint) (*models.Subscription, error)
	ListAll(ctx context.Context) ([]models.Subscription, error)
	AdminUpdate(ctx context.Context, id uint, patch billing.SubscriptionPatch) (*models.Subscription, error)
	Delete(ctx context.Context, id uint) error
}

type purchaseRequest struct {
	PlanID uint `json:"planId"`
}

// SubscriptionController serves purchases and the subscription ledger.
type SubscriptionController struct {
	ledger SubscriptionService
}

// NewSubscriptionController creates a subscription controller on top of the ledger
func NewSubscriptionController(ledger SubscriptionService) *SubscriptionController {
	return &SubscriptionController{ledger: ledger}
}

// HandleStartPurchase opens a payment intent for the caller and records the pending row.
func (sc *SubscriptionController) HandleStartPurchase(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.PlanID == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "planId is required")
	}

	result, err := sc.ledger.StartPurchaseWithRetry(c.UserContext(), userCtx.UserID, req.PlanID)
	if err != nil {
		return billingError(c, "start purchase", err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleGetOwnSubscription returns the caller's most recent subscription row.
func (sc *SubscriptionController) HandleGetOwnSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	sub, err := sc.ledger.Get(c.UserContext(), userCtx.UserID)
	if err != nil {
		return billingError(c, "get own subscription", err)
	}
	return c.JSON(sub)
}

// HandleListSubscriptions returns every subscription, newest first.
func (sc *SubscriptionController) HandleListSubscriptions(c *fiber.Ctx) error {
	subs, err := sc.ledger.ListAll(c.UserContext())
	if err != nil {
		return billingError(c, "list subscriptions", err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleGetSubscription returns a subscription by id.
func (sc *SubscriptionController) HandleGetSubscription(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid subscription id")
	}
	sub, err := sc.ledger.GetByID(c.UserContext(), id)
	if err != nil {
		return billingError(c, "get subscription", err)
	}
	return c.JSON(sub)
}

// HandleUpdateSubscription is the administrative override of a ledger row.
func (sc *SubscriptionController) HandleUpdateSubscription(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid subscription id")
	}
	var patch billing.SubscriptionPatch
	if err := c.BodyParser(&patch); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	sub, err := sc.ledger.AdminUpdate(c.UserContext(), id, patch)
	if err != nil {
		return billingError(c, "update subscription", err)
	}
	return c.JSON(sub)
}

// HandleDeleteSubscription removes a ledger row.
func (sc *SubscriptionController) HandleDeleteSubscription(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid subscription id")
	}
	if err := sc.ledger.Delete(c.UserContext(), id); err != nil {
		return billingError(c, "delete subscription", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
