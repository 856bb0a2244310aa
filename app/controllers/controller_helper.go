package controllers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/reconciliation"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/refcode"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/upload"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/usercontext"
)

var validationErrors = []error{
	registration.ErrInvalidInput,
	registration.ErrMissingReason,
	installment.ErrInvalidPlan,
	reconciliation.ErrMissingReason,
	reconciliation.ErrMissingProof,
	reconciliation.ErrMissingActor,
	reconciliation.ErrInvalidAmount,
	reconciliation.ErrEmptyBatch,
	upload.ErrUnsupportedType,
}

var notFoundErrors = []error{
	payment.ErrNotFound,
	registration.ErrNotFound,
	registration.ErrEventNotFound,
}

var conflictErrors = []error{
	payment.ErrIllegalTransition,
	payment.ErrStateConflict,
	payment.ErrPlanExists,
	reconciliation.ErrProofClosed,
	registration.ErrCancelled,
	registration.ErrAlreadyCancelled,
	registration.ErrNotCancelled,
	registration.ErrEventInactive,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondError maps domain errors to status codes with the usual error body.
func respondError(c *fiber.Ctx, err error) error {
	var preflight *reconciliation.BatchPreflightError
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &preflight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":      "batch_preflight_failed",
			"message":    err.Error(),
			"violations": preflight.Violations,
		})
	case isAny(err, validationErrors), errors.As(err, &invalid):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	case isAny(err, notFoundErrors):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case isAny(err, conflictErrors):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	case errors.Is(err, refcode.ErrCodeCollision):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Could not allocate a reference code, please retry"})
	}
	log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal error"})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

// parseID reads a positive numeric route parameter.
func parseID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// parseOptionalBody parses the body into out unless the body is empty.
func parseOptionalBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}

// actorID returns the identity forwarded by the gateway.
func actorID(c *fiber.Ctx) string {
	return usercontext.ActorID(c)
}
