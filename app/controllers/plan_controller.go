package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
)

// PlanService is the catalog surface the plan endpoints need. *billing.Catalog
// satisfies it.
type PlanService interface {
	CreatePlan(ctx context.Context, spec billing.PlanSpec) (*models.Plan, error)
	UpdatePlan(ctx context.Context, id uint, patch billing.PlanPatch) (*models.Plan, error)
	DeletePlan(ctx context.Context, id uint) error
	ListPlans(ctx context.Context) ([]models.Plan, error)
	GetPlan(ctx context.Context, id uint) (*models.Plan, error)
}

// PlanController serves the plan catalog.
type PlanController struct {
	plans PlanService
}

// NewPlanController creates a plan controller on top of the catalog
func NewPlanController(plans PlanService) *PlanController {
	return &PlanController{plans: plans}
}

// HandleListPlans returns every plan.
func (pc *PlanController) HandleListPlans(c *fiber.Ctx) error {
	plans, err := pc.plans.ListPlans(c.UserContext())
	if err != nil {
		return billingError(c, "list plans", err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleGetPlan returns a single plan.
func (pc *PlanController) HandleGetPlan(c *fiber.Ctx) error {
	id, ok := idParam(c, "planId")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid plan id")
	}
	plan, err := pc.plans.GetPlan(c.UserContext(), id)
	if err != nil {
		return billingError(c, "get plan", err)
	}
	return c.JSON(plan)
}

// HandleCreatePlan creates a plan together with its processor product and price.
func (pc *PlanController) HandleCreatePlan(c *fiber.Ctx) error {
	var spec billing.PlanSpec
	if err := c.BodyParser(&spec); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	plan, err := pc.plans.CreatePlan(c.UserContext(), spec)
	if err != nil {
		return billingError(c, "create plan", err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleUpdatePlan applies a partial update. Changing the pricing creates a new price.
func (pc *PlanController) HandleUpdatePlan(c *fiber.Ctx) error {
	id, ok := idParam(c, "planId")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid plan id")
	}
	var patch billing.PlanPatch
	if err := c.BodyParser(&patch); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	plan, err := pc.plans.UpdatePlan(c.UserContext(), id, patch)
	if err != nil {
		return billingError(c, "update plan", err)
	}
	return c.JSON(plan)
}

// HandleDeletePlan removes a plan.
func (pc *PlanController) HandleDeletePlan(c *fiber.Ctx) error {
	id, ok := idParam(c, "planId")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid plan id")
	}
	if err := pc.plans.DeletePlan(c.UserContext(), id); err != nil {
		return billingError(c, "delete plan", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
