package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pitlane-app/pitlane/internal/pkg/middleware"
	"github.com/pitlane-app/pitlane/internal/pkg/session"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	if session.GetSessionStore() == nil {
		session.NewSessionStore()
	}

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerWebhookRoutes(app)
}

// registerWebhookRoutes mounts provider callbacks. The limiter runs before
// signature verification and is coarser than the API limiter.
func (h HttpRouter) registerWebhookRoutes(app *fiber.App) {
	webhooks := app.Group("/webhooks", middleware.RateLimit(
		"webhook",
		h.deps.RateLimit.WebhookMax,
		h.deps.RateLimit.WebhookWindow,
		h.deps.LimiterStorage,
	))
	webhooks.Post("/stripe", h.deps.Billing.HandleStripeWebhook)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
