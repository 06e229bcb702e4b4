package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/pitlane-app/pitlane/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	billing *controllers.BillingController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billing *controllers.BillingController) *APIServer {
	return &APIServer{billing: billing}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPayments lists the session user's payments.
// Security is enforced via session auth middleware attached in RegisterHandlers.
func (s *APIServer) GetPayments(c *fiber.Ctx) error {
	return s.billing.HandleListPayments(c)
}

// PostPaymentRefund refunds one of the session user's payments.
func (s *APIServer) PostPaymentRefund(c *fiber.Ctx) error {
	return s.billing.HandleCreateRefund(c)
}

// GetEntitlements returns the session user's plan and garage capacity.
func (s *APIServer) GetEntitlements(c *fiber.Ctx) error {
	return s.billing.HandleGetEntitlements(c)
}
