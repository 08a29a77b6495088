package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PayLedger/app/controllers"
	"github.com/ManuelReschke/PayLedger/internal/pkg/middleware"
)

const webhookPath = "/billing/stripe/webhook"

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		// processor retries must never be throttled
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), webhookPath)
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// signature verified requests only, no user context
	billingController := controllers.NewBillingController(h.deps.Billing.Processor, h.deps.Billing.Engine)
	v1.Post(webhookPath, billingController.HandleStripeWebhook)

	v1.Use(middleware.UserContextMiddleware(h.deps.Users, h.deps.Admin))

	plans := controllers.NewPlanController(h.deps.Billing.Catalog)
	v1.Get("/plans", plans.HandleListPlans)
	v1.Get("/plans/:planId", plans.HandleGetPlan)
	v1.Post("/plans", middleware.RequireAPIAdmin, plans.HandleCreatePlan)
	v1.Patch("/plans/:planId", middleware.RequireAPIAdmin, plans.HandleUpdatePlan)
	v1.Delete("/plans/:planId", middleware.RequireAPIAdmin, plans.HandleDeletePlan)

	subs := controllers.NewSubscriptionController(h.deps.Billing.Ledger)
	v1.Post("/subscriptions", middleware.RequireAPIAuth, subs.HandleStartPurchase)
	v1.Get("/subscriptions/me", middleware.RequireAPIAuth, subs.HandleGetOwnSubscription)
	v1.Get("/subscriptions", middleware.RequireAPIAdmin, subs.HandleListSubscriptions)
	v1.Get("/subscriptions/:id", middleware.RequireAPIAdmin, subs.HandleGetSubscription)
	v1.Put("/subscriptions/:id", middleware.RequireAPIAdmin, subs.HandleUpdateSubscription)
	v1.Delete("/subscriptions/:id", middleware.RequireAPIAdmin, subs.HandleDeleteSubscription)

	users := controllers.NewUserController(h.deps.Users)
	v1.Get("/me/entitlement", middleware.RequireAPIAuth, users.HandleGetEntitlement)

	admin := v1.Group("/admin", middleware.RequireAPIAdmin)
	admin.Get("/users", users.HandleAdminListUsers)
	admin.Post("/users", users.HandleAdminCreateUser)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
