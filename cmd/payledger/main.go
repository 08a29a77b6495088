package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PayLedger/app/repository"
	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
	"github.com/ManuelReschke/PayLedger/internal/pkg/cache"
	"github.com/ManuelReschke/PayLedger/internal/pkg/database"
	"github.com/ManuelReschke/PayLedger/internal/pkg/env"
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
	"github.com/ManuelReschke/PayLedger/internal/pkg/middleware"
	"github.com/ManuelReschke/PayLedger/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	var billingCfg billing.Config
	var adminCfg middleware.AdminConfig
	var metricsAuth router.MetricsAuth
	for _, cfg := range []any{&billingCfg, &adminCfg, &metricsAuth} {
		if err := env.Load(cfg); err != nil {
			log.Fatalf("invalid configuration: %v", err)
		}
	}
	if billingCfg.StripeWebhookSecret == "" {
		log.Println("STRIPE_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/payledger to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	repository.InitializeFactory(database.GetDB())
	factory := repository.GetGlobalFactory()
	users := factory.GetUserRepository()
	collector := metrics.NewCollector()

	svc := billing.NewService(factory.GetBillingRepository(), billing.NewStripeProcessor(billingCfg), users, billingCfg, billing.Options{
		Locker:  cache.NewRedisLocker(cache.GetClient()),
		Metrics: collector,
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        svc,
		Users:          users,
		Admin:          adminCfg,
		Metrics:        collector,
		LimiterStorage: cache.NewLimiterStorage(),
		MetricsAuth:    metricsAuth,
	})

	return app
}
