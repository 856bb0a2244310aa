package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/usercontext"
)

// ActorMiddleware reads the forwarded identity headers into the actor context.
func ActorMiddleware(c *fiber.Ctx) error {
	actor := strings.TrimSpace(c.Get(usercontext.HeaderActor))
	if len(actor) > usercontext.MaxActorSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "actor id too long",
		})
	}
	c.Locals(usercontext.KeyActor, usercontext.ActorContext{
		ActorID: actor,
		IsAdmin: actor != "" && strings.EqualFold(strings.TrimSpace(c.Get(usercontext.HeaderAdmin)), usercontext.RoleAdmin),
	})
	return c.Next()
}

// RequireActor rejects requests without an acting identifier.
func RequireActor(c *fiber.Ctx) error {
	if usercontext.ActorID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "X-Actor-ID header required",
		})
	}
	return c.Next()
}

// RequireAdmin rejects requests whose actor is not an administrator.
func RequireAdmin(c *fiber.Ctx) error {
	if usercontext.ActorID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "X-Actor-ID header required",
		})
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "administrator role required",
		})
	}
	return c.Next()
}
