package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/pitlane-app/pitlane/internal/api/v1"
	"github.com/pitlane-app/pitlane/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.RateLimit(
		"api",
		h.deps.RateLimit.APIMax,
		h.deps.RateLimit.APIWindow,
		h.deps.LimiterStorage,
	))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.deps.Billing)
	apiv1.RegisterHandlers(v1, apiServer, middleware.RequireAPISessionAuth)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
