package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/tipcast/tipcast/app/controllers"
	"github.com/tipcast/tipcast/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max: 120,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Overlay sync protocol, overlay-token authenticated
	overlay := api.Group("/overlay")
	overlay.Get("/next", controllers.HandleOverlayNext)
	overlay.Post("/ack", controllers.HandleOverlayAck)

	// Control broadcast channel
	ctrls := api.Group("/controls")
	ctrls.Post("/command", middleware.RequireAPISessionAuth, controllers.HandleControlCommand)
	ctrls.Get("/state", middleware.RequireAPISessionAuth, controllers.HandleControlState)
	ctrls.Post("/webhook", middleware.APIKeyAuthMiddleware(), controllers.HandleControlWebhook)
	ctrls.Get("/stream", controllers.HandleControlStream)

	// Internal trusted surface, shared-secret authenticated
	internal := api.Group("/internal", middleware.InternalAuthMiddleware())
	internal.Post("/alerts/:id/narrate", controllers.HandleNarrationTrigger)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
