package usercontext

import "github.com/gofiber/fiber/v2"

// ActorContext identifies who performs a request. Authentication happens in
// front of this service; the gateway forwards the identity in headers.
type ActorContext struct {
	ActorID string `json:"actor_id"`
	IsAdmin bool   `json:"is_admin"`
}

// GetActorContext retrieves the actor context from fiber context
// Returns an anonymous context if none is set
func GetActorContext(c *fiber.Ctx) ActorContext {
	if ctx, ok := c.Locals(KeyActor).(ActorContext); ok {
		return ctx
	}
	return ActorContext{}
}

// ActorID returns the acting identifier, or an empty string
func ActorID(c *fiber.Ctx) string {
	return GetActorContext(c).ActorID
}

// IsAdmin checks if the current actor is an administrator
func IsAdmin(c *fiber.Ctx) bool {
	return GetActorContext(c).IsAdmin
}
