package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tipcast/tipcast/app/controllers"
	"github.com/tipcast/tipcast/internal/pkg/middleware"
	"github.com/tipcast/tipcast/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Payment provider webhooks live outside /api: providers deliver to a
	// stable top-level path and authenticate by signature, not session.
	app.Post("/webhooks/:provider", controllers.HandleProviderWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
