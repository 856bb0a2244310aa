package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/usercontext"
)

// RegistrationController serves registrations and their installment plans.
type RegistrationController struct {
	services *Services
}

// NewRegistrationController creates a registration controller.
func NewRegistrationController(s *Services) *RegistrationController {
	return &RegistrationController{services: s}
}

type createPlanRequest struct {
	TotalCost        decimal.Decimal `json:"total_cost"`
	InstallmentCount int             `json:"installment_count"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// HandleRegister creates a registration with its reference code and plan.
func (rc *RegistrationController) HandleRegister(c *fiber.Ctx) error {
	var in registration.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if in.Channel == "" && usercontext.IsAdmin(c) {
		in.Channel = models.ChannelAdmin
	}

	status, err := rc.services.Registrations.Register(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(status)
}

// HandleCreatePlan adds the installment plan to a deferred registration.
// total_cost may be omitted and otherwise must equal the event price; without
// installment_count the policy default is used.
func (rc *RegistrationController) HandleCreatePlan(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration id")
	}
	var req createPlanRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.InstallmentCount == 0 {
		req.InstallmentCount = rc.services.Policy.Current().DefaultInstallments
	}

	records, err := rc.services.Registrations.CreatePlan(c.UserContext(), id, req.TotalCost, req.InstallmentCount)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"registration_id": id,
		"payments":        records,
	})
}

// HandleStatus returns the projected registration status.
func (rc *RegistrationController) HandleStatus(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration id")
	}
	status, err := rc.services.Registrations.Status(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// HandleStatusByReference looks a registration up by its reference code.
func (rc *RegistrationController) HandleStatusByReference(c *fiber.Ctx) error {
	status, err := rc.services.Registrations.StatusByReference(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// HandleCancel cancels a registration.
func (rc *RegistrationController) HandleCancel(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration id")
	}
	var req reasonRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	status, err := rc.services.Registrations.Cancel(c.UserContext(), id, actorID(c), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// HandleReinstate lifts a cancellation.
func (rc *RegistrationController) HandleReinstate(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration id")
	}
	status, err := rc.services.Registrations.Reinstate(c.UserContext(), id, actorID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// Adapter functions for the router

func HandleRegister(c *fiber.Ctx) error { return registrationController.HandleRegister(c) }

func HandleCreatePlan(c *fiber.Ctx) error { return registrationController.HandleCreatePlan(c) }

func HandleRegistrationStatus(c *fiber.Ctx) error { return registrationController.HandleStatus(c) }

func HandleRegistrationByReference(c *fiber.Ctx) error {
	return registrationController.HandleStatusByReference(c)
}

func HandleCancelRegistration(c *fiber.Ctx) error { return registrationController.HandleCancel(c) }

func HandleReinstateRegistration(c *fiber.Ctx) error { return registrationController.HandleReinstate(c) }
