package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the liveness response.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface mirrors the operations in public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /payments)
	GetPayments(c *fiber.Ctx) error
	// (POST /payments/refund)
	PostPaymentRefund(c *fiber.Ctx) error
	// (GET /entitlements)
	GetEntitlements(c *fiber.Ctx) error
}

// RegisterHandlers mounts the v1 operations. auth guards every operation
// except ping.
func RegisterHandlers(router fiber.Router, si ServerInterface, auth fiber.Handler) {
	router.Get("/ping", si.GetPing)
	router.Get("/payments", auth, si.GetPayments)
	router.Post("/payments/refund", auth, si.PostPaymentRefund)
	router.Get("/entitlements", auth, si.GetEntitlements)
}
