package main

import (
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitlane-app/pitlane/app/controllers"
	"github.com/pitlane-app/pitlane/internal/pkg/billing"
	"github.com/pitlane-app/pitlane/internal/pkg/cache"
	"github.com/pitlane-app/pitlane/internal/pkg/config"
	"github.com/pitlane-app/pitlane/internal/pkg/database"
	"github.com/pitlane-app/pitlane/internal/pkg/env"
	"github.com/pitlane-app/pitlane/internal/pkg/mail"
	"github.com/pitlane-app/pitlane/internal/pkg/router"
)

func main() {
	app, cfg := NewApplication()
	err := app.Listen(cfg.ListenAddr())
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *config.Config) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.IsDev() {
		fiberlog.SetLevel(fiberlog.LevelDebug)
	} else {
		fiberlog.SetLevel(fiberlog.LevelInfo)
	}

	database.SetupDatabase(cfg.Database)
	cache.SetupCache(cfg.Cache)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/pitlane to project root
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

	// billing wiring
	var notifier billing.Notifier = billing.NopNotifier{}
	if cfg.SMTP.Enabled() {
		notifier = mail.NewBillingNotifier(mail.NewSMTPMailer(cfg.SMTP, cfg.PublicDomain))
	} else {
		log.Println("SMTP_HOST not set, billing notifications are disabled")
	}
	store := billing.NewStore(database.GetDB(), database.GetServiceDB())
	provider := billing.NewStripeProvider(cfg.Stripe.SecretKey)
	dispatcher := billing.NewDispatcher(billing.NewReconciler(store, notifier), notifier)
	payments := billing.NewService(provider, store, cfg.History.SessionLimit)
	billingController := controllers.NewBillingController(cfg.Stripe.WebhookSecret, dispatcher, payments)

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook and JSON bodies only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	if cfg.Metrics.Password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.Metrics.User: cfg.Metrics.Password,
			},
		}), adaptor.HTTPHandler(promhttp.Handler()))
	} else {
		log.Println("METRICS_PASSWORD not set, /metrics is disabled")
	}

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		RateLimit:      cfg.RateLimit,
		Billing:        billingController,
		LimiterStorage: cache.NewStorage(cache.DatabaseRateLimit),
	})

	return app, cfg
}
