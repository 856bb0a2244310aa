package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/ManuelReschke/ConventionPay/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

func (s *APIServer) PostRegistrations(c *fiber.Ctx) error {
	return controllers.HandleRegister(c)
}

// GetRegistrationByReference serves the lookup registrants use with the code
// printed on their confirmation. The controller reads the code from the route.
func (s *APIServer) GetRegistrationByReference(c *fiber.Ctx, code string) error {
	return controllers.HandleRegistrationByReference(c)
}

func (s *APIServer) GetRegistrationStatus(c *fiber.Ctx, id uint) error {
	return controllers.HandleRegistrationStatus(c)
}

func (s *APIServer) PostRegistrationPlan(c *fiber.Ctx, id uint) error {
	return controllers.HandleCreatePlan(c)
}

func (s *APIServer) PostRegistrationCancel(c *fiber.Ctx, id uint) error {
	return controllers.HandleCancelRegistration(c)
}

func (s *APIServer) PostRegistrationReinstate(c *fiber.Ctx, id uint) error {
	return controllers.HandleReinstateRegistration(c)
}

func (s *APIServer) PostPaymentsValidateBatch(c *fiber.Ctx) error {
	return controllers.HandleValidateBatch(c)
}

// PostPaymentProof is open to registrants; without X-Actor-ID the proof is
// attributed to "registrant".
func (s *APIServer) PostPaymentProof(c *fiber.Ctx, id uint) error {
	return controllers.HandleAttachProof(c)
}

func (s *APIServer) PostPaymentValidate(c *fiber.Ctx, id uint) error {
	return controllers.HandleValidatePayment(c)
}

func (s *APIServer) PostPaymentReject(c *fiber.Ctx, id uint) error {
	return controllers.HandleRejectPayment(c)
}

func (s *APIServer) PostPaymentReinstate(c *fiber.Ctx, id uint) error {
	return controllers.HandleReinstatePayment(c)
}

func (s *APIServer) PostPaymentRefund(c *fiber.Ctx, id uint) error {
	return controllers.HandleRefundPayment(c)
}

func (s *APIServer) GetPaymentHistory(c *fiber.Ctx, id uint) error {
	return controllers.HandlePaymentHistory(c)
}
