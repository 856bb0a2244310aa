package apiv1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ServerInterface represents all server handlers of the public v1 API.
type ServerInterface interface {
	// Health check
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// Register for an event
	// (POST /registrations)
	PostRegistrations(c *fiber.Ctx) error
	// Look a registration up by reference code
	// (GET /registrations/reference/{code})
	GetRegistrationByReference(c *fiber.Ctx, code string) error
	// Projected registration status
	// (GET /registrations/{id}/status)
	GetRegistrationStatus(c *fiber.Ctx, id uint) error
	// Create the installment plan of a deferred registration
	// (POST /registrations/{id}/plan)
	PostRegistrationPlan(c *fiber.Ctx, id uint) error
	// (POST /registrations/{id}/cancel)
	PostRegistrationCancel(c *fiber.Ctx, id uint) error
	// (POST /registrations/{id}/reinstate)
	PostRegistrationReinstate(c *fiber.Ctx, id uint) error
	// Validate many payments at once
	// (POST /payments/validate-batch)
	PostPaymentsValidateBatch(c *fiber.Ctx) error
	// Attach a proof of payment
	// (POST /payments/{id}/proof)
	PostPaymentProof(c *fiber.Ctx, id uint) error
	// (POST /payments/{id}/validate)
	PostPaymentValidate(c *fiber.Ctx, id uint) error
	// (POST /payments/{id}/reject)
	PostPaymentReject(c *fiber.Ctx, id uint) error
	// (POST /payments/{id}/reinstate)
	PostPaymentReinstate(c *fiber.Ctx, id uint) error
	// (POST /payments/{id}/refund)
	PostPaymentRefund(c *fiber.Ctx, id uint) error
	// Audit trail of a payment
	// (GET /payments/{id}/history)
	GetPaymentHistory(c *fiber.Ctx, id uint) error
}

// ServerOptions guards operations that need an identified caller.
// A nil handler lets every request through.
type ServerOptions struct {
	RequireActor fiber.Handler
	RequireAdmin fiber.Handler
}

// ServerInterfaceWrapper converts fiber contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

type idHandler func(c *fiber.Ctx, id uint) error

// withID parses the "id" path parameter before calling h.
func (w *ServerInterfaceWrapper) withID(h idHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "bad_request",
				"message": "Invalid format for parameter id",
			})
		}
		return h(c, uint(id))
	}
}

func (w *ServerInterfaceWrapper) GetRegistrationByReference(c *fiber.Ctx) error {
	return w.Handler.GetRegistrationByReference(c, c.Params("code"))
}

func passthrough(c *fiber.Ctx) error {
	return c.Next()
}

// RegisterHandlers creates http.Handler with routing matching the v1 API.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, ServerOptions{})
}

// RegisterHandlersWithOptions registers the v1 routes with the given guards.
func RegisterHandlersWithOptions(router fiber.Router, si ServerInterface, options ServerOptions) {
	actor := options.RequireActor
	if actor == nil {
		actor = passthrough
	}
	admin := options.RequireAdmin
	if admin == nil {
		admin = passthrough
	}

	w := &ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", si.GetPing)

	router.Post("/registrations", si.PostRegistrations)
	router.Get("/registrations/reference/:code", w.GetRegistrationByReference)
	router.Get("/registrations/:id/status", w.withID(si.GetRegistrationStatus))
	router.Post("/registrations/:id/plan", admin, w.withID(si.PostRegistrationPlan))
	router.Post("/registrations/:id/cancel", admin, w.withID(si.PostRegistrationCancel))
	router.Post("/registrations/:id/reinstate", admin, w.withID(si.PostRegistrationReinstate))

	router.Post("/payments/validate-batch", admin, si.PostPaymentsValidateBatch)
	router.Post("/payments/:id/proof", w.withID(si.PostPaymentProof))
	router.Post("/payments/:id/validate", admin, w.withID(si.PostPaymentValidate))
	router.Post("/payments/:id/reject", admin, w.withID(si.PostPaymentReject))
	router.Post("/payments/:id/reinstate", admin, w.withID(si.PostPaymentReinstate))
	router.Post("/payments/:id/refund", admin, w.withID(si.PostPaymentRefund))
	router.Get("/payments/:id/history", actor, w.withID(si.GetPaymentHistory))
}
