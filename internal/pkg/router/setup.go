package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ArtFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Options carries what the routers need besides the handlers.
type Options struct {
	InternalAPIKey string
	// RateLimit is the number of API requests per IP and minute, 0 disables it.
	RateLimit      int
	// LimiterStorage shares limiter counters between instances, nil keeps them in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, h *controllers.Handler, opts Options) {
	// HttpRouter installs the global user context middleware the API routes rely on.
	setup(app, NewHttpRouter(), NewApiRouter(h, opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
