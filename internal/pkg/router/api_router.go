package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ConventionPay/app/controllers"
	apiv1 "github.com/ManuelReschke/ConventionPay/internal/api/v1"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiterConfig()), middleware.ActorMiddleware)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlersWithOptions(v1, apiServer, apiv1.ServerOptions{
		RequireActor: middleware.RequireActor,
		RequireAdmin: middleware.RequireAdmin,
	})

	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Get("/events", controllers.HandleAdminListEvents)
	admin.Post("/events", controllers.HandleAdminCreateEvent)
	admin.Put("/events/:id/cost", controllers.HandleAdminUpdateEventCost)
	admin.Put("/events/:id/active", controllers.HandleAdminSetEventActive)
	admin.Get("/policy", controllers.HandleAdminGetPolicy)
	admin.Put("/policy", controllers.HandleAdminUpdatePolicy)
	admin.Get("/registrations/:id/notifications", controllers.HandleAdminListNotifications)
	admin.Get("/queue", controllers.HandleAdminQueueSizes)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
