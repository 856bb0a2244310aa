package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/metrics"
)

// OpsRouter serves metrics and the runtime monitor.
type OpsRouter struct {
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Use(metrics.Middleware())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	user := env.GetEnv("MONITOR_USER", "")
	if user == "" {
		return
	}
	app.Get("/monitor", basicauth.New(basicauth.Config{
		Users: map[string]string{
			user: env.GetEnv("MONITOR_PASSWORD", ""),
		},
	}), monitor.New(monitor.Config{Title: "ConventionPay Monitor"}))
}

func NewOpsRouter() *OpsRouter {
	return &OpsRouter{}
}
