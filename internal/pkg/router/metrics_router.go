package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
)

// MetricsAuth protects the Prometheus endpoint with basic auth.
type MetricsAuth struct {
	User     string `env:"METRICS_USER" envDefault:"admin"`
	Password string `env:"METRICS_PASSWORD"`
}

type MetricsRouter struct {
	collector *metrics.Collector
	auth      MetricsAuth
}

func (h MetricsRouter) InstallRouter(app *fiber.App) {
	if h.collector == nil {
		return
	}
	if h.auth.Password == "" {
		log.Warn("[Metrics] METRICS_PASSWORD not set, /metrics is disabled")
		return
	}
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.auth.User: h.auth.Password,
		},
	}), adaptor.HTTPHandler(h.collector.Handler()))
}

func NewMetricsRouter(collector *metrics.Collector, auth MetricsAuth) *MetricsRouter {
	return &MetricsRouter{collector: collector, auth: auth}
}
