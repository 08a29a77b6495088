package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayLedger/app/repository"
	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
	"github.com/ManuelReschke/PayLedger/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired components the routes dispatch to.
type Dependencies struct {
	Billing *billing.Service
	Users   repository.UserRepository
	Admin   middleware.AdminConfig
	Metrics *metrics.Collector
	// LimiterStorage backs the API rate limiter. Nil keeps the counters in memory.
	LimiterStorage fiber.Storage
	MetricsAuth    MetricsAuth
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewMetricsRouter(deps.Metrics, deps.MetricsAuth), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
