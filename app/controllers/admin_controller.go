package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
)

// AdminController serves event, policy and delivery administration.
type AdminController struct {
	services *Services
}

// NewAdminController creates an admin controller.
func NewAdminController(s *Services) *AdminController {
	return &AdminController{services: s}
}

type eventRequest struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Year     int             `json:"year"`
	Cost     decimal.Decimal `json:"cost"`
	IsActive *bool           `json:"is_active"`
}

type costRequest struct {
	Cost string `json:"cost"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type policyRequest struct {
	MaxInstallments      *int      `json:"max_installments"`
	DefaultInstallments  *int      `json:"default_installments"`
	AmountTolerance      *string   `json:"amount_tolerance"`
	ProofRequiredMethods *[]string `json:"proof_required_methods"`
}

type policyView struct {
	MaxInstallments      int      `json:"max_installments"`
	DefaultInstallments  int      `json:"default_installments"`
	AmountTolerance      string   `json:"amount_tolerance"`
	ProofRequiredMethods []string `json:"proof_required_methods"`
}

func viewPolicy(p *policy.Policy) policyView {
	methods := p.ProofRequiredMethods
	if methods == nil {
		methods = []string{}
	}
	return policyView{
		MaxInstallments:      p.MaxInstallments,
		DefaultInstallments:  p.DefaultInstallments,
		AmountTolerance:      p.AmountTolerance.String(),
		ProofRequiredMethods: methods,
	}
}

// HandleListEvents lists events, only open ones with ?active=true.
func (ac *AdminController) HandleListEvents(c *fiber.Ctx) error {
	events, err := ac.services.Repos.Event.List(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

// HandleCreateEvent adds a convention.
func (ac *AdminController) HandleCreateEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	event := &models.Event{
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:     strings.TrimSpace(req.Name),
		Year:     req.Year,
		Cost:     req.Cost,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := ac.services.Repos.Event.Create(c.UserContext(), event); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] Event %d (%s %d) created by %s", event.ID, event.Code, event.Year, actorID(c))
	return c.Status(fiber.StatusCreated).JSON(event)
}

// HandleUpdateEventCost changes the price used for plans and validations.
func (ac *AdminController) HandleUpdateEventCost(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid event id")
	}
	var req costRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	ctx := c.UserContext()
	if err := ac.services.Repos.Event.UpdateCost(ctx, id, strings.TrimSpace(req.Cost)); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] Event %d cost set to %s by %s", id, req.Cost, actorID(c))
	event, err := ac.services.Repos.Event.FindEventByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(event)
}

// HandleSetEventActive opens or closes an event for registrations.
func (ac *AdminController) HandleSetEventActive(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid event id")
	}
	var req activeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	ctx := c.UserContext()
	if err := ac.services.Repos.Event.SetActive(ctx, id, req.Active); err != nil {
		return respondError(c, err)
	}
	event, err := ac.services.Repos.Event.FindEventByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(event)
}

// HandleGetPolicy returns the policy in effect.
func (ac *AdminController) HandleGetPolicy(c *fiber.Ctx) error {
	return c.JSON(viewPolicy(ac.services.Policy.Current()))
}

// HandleUpdatePolicy stores policy overrides in the settings table and
// reloads the policy. The merged policy is validated before anything is saved.
func (ac *AdminController) HandleUpdatePolicy(c *fiber.Ctx) error {
	var req policyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	type override struct {
		key, value, kind string
	}
	var overrides []override
	if req.MaxInstallments != nil {
		overrides = append(overrides, override{policy.KeyMaxInstallments, strconv.Itoa(*req.MaxInstallments), "integer"})
	}
	if req.DefaultInstallments != nil {
		overrides = append(overrides, override{policy.KeyDefaultInstallments, strconv.Itoa(*req.DefaultInstallments), "integer"})
	}
	if req.AmountTolerance != nil {
		overrides = append(overrides, override{policy.KeyAmountTolerance, strings.TrimSpace(*req.AmountTolerance), "decimal"})
	}
	if req.ProofRequiredMethods != nil {
		value := strings.Join(*req.ProofRequiredMethods, ",")
		if value == "" {
			value = "-"
		}
		overrides = append(overrides, override{policy.KeyProofRequiredMethods, value, "list"})
	}
	if len(overrides) == 0 {
		return ac.HandleGetPolicy(c)
	}

	values := make(map[string]string, len(overrides))
	for _, o := range overrides {
		values[o.key] = o.value
	}
	candidate := *ac.services.Policy.Current()
	candidate.ProofRequiredMethods = append([]string(nil), candidate.ProofRequiredMethods...)
	if err := candidate.ApplyOverrides(values); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := candidate.Validate(); err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	for _, o := range overrides {
		if err := ac.services.Repos.Setting.SetValue(ctx, o.key, o.value, o.kind); err != nil {
			return respondError(c, err)
		}
	}
	if err := ac.services.Policy.Reload(ac.services.DB); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] Policy updated by %s: %v", actorID(c), values)
	return c.JSON(viewPolicy(ac.services.Policy.Current()))
}

// HandleListNotifications shows the delivery log of one registration.
func (ac *AdminController) HandleListNotifications(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid registration id")
	}
	ctx := c.UserContext()
	if _, err := ac.services.Repos.Registration.FindByID(ctx, id); err != nil {
		return respondError(c, err)
	}
	notifications, err := ac.services.Repos.Notification.ListByRegistration(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"registration_id": id,
		"notifications":   notifications,
	})
}

// HandleQueueSizes reports the notification queue backlog.
func (ac *AdminController) HandleQueueSizes(c *fiber.Ctx) error {
	if ac.services.Queue == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Job queue is not running"})
	}
	sizes, err := ac.services.Queue.Sizes(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sizes)
}

// Adapter functions for the router

func HandleAdminListEvents(c *fiber.Ctx) error { return adminController.HandleListEvents(c) }

func HandleAdminCreateEvent(c *fiber.Ctx) error { return adminController.HandleCreateEvent(c) }

func HandleAdminUpdateEventCost(c *fiber.Ctx) error { return adminController.HandleUpdateEventCost(c) }

func HandleAdminSetEventActive(c *fiber.Ctx) error { return adminController.HandleSetEventActive(c) }

func HandleAdminGetPolicy(c *fiber.Ctx) error { return adminController.HandleGetPolicy(c) }

func HandleAdminUpdatePolicy(c *fiber.Ctx) error { return adminController.HandleUpdatePolicy(c) }

func HandleAdminListNotifications(c *fiber.Ctx) error {
	return adminController.HandleListNotifications(c)
}

func HandleAdminQueueSizes(c *fiber.Ctx) error { return adminController.HandleQueueSizes(c) }
