package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// NewApp registers every route. metrics may be nil.
func NewApp(h *Handler, proxy *ProxyHandler, metrics http.Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	if proxy != nil {
		app.Use(proxy.ProxyRequest)
	}
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	api := app.Group("/api")
	v1 := api.Group("/v1")

	containers := v1.Group("/containers")
	containers.Get("/", h.ListContainers)
	containers.Post("/:id/stop", h.StopContainer)
	containers.Get("/:id/logs", h.GetContainerLogs)

	v1.Get("/networks", h.ListNetworks)
	v1.Get("/readiness", h.Readiness)

	groups := v1.Group("/groups")
	groups.Post("/:group/install", h.InstallGroup)
	groups.Post("/:group/:action", h.ApplyGroupAction)

	v1.Post("/simulation/start", h.StartSimulation)
	v1.Post("/teardown", h.Teardown)

	return app
}
