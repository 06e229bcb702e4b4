package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pitlane-app/pitlane/app/controllers"
	"github.com/pitlane-app/pitlane/internal/pkg/config"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired services the routes delegate to.
type Dependencies struct {
	RateLimit config.RateLimitConfig
	Billing   *controllers.BillingController
	// LimiterStorage holds rate-limit counters; nil keeps them in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Install HttpRouter first to initialize the session store and the global
	// UserContext middleware. The API routes depend on that middleware.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
