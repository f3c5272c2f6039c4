package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ArtFox/app/controllers"
	"github.com/ManuelReschke/ArtFox/internal/pkg/middleware"
)

type ApiRouter struct {
	handler *controllers.Handler
	opts    Options
}

func (r ApiRouter) InstallRouter(app *fiber.App) {
	var api fiber.Router
	if r.opts.RateLimit > 0 {
		api = app.Group("/api", limiter.New(limiter.Config{
			Max:        r.opts.RateLimit,
			Expiration: time.Minute,
			Storage:    r.opts.LimiterStorage,
		}))
	} else {
		api = app.Group("/api")
	}
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	h := r.handler
	requireUser := middleware.RequireUser()
	internalOnly := middleware.InternalAPIKeyMiddleware(r.opts.InternalAPIKey)

	// Credits
	v1.Get("/credits", requireUser, h.HandleGetCredits)
	v1.Post("/credits/init", requireUser, h.HandleInitCredits)
	v1.Get("/credits/transactions", requireUser, h.HandleListTransactions)
	v1.Post("/credits/purchase", internalOnly, h.HandlePurchaseCredits)

	// Generation
	v1.Post("/generate", requireUser, h.HandleGenerate)

	// Orders
	v1.Post("/orders", requireUser, h.HandleCreateOrder)
	v1.Get("/orders", requireUser, h.HandleListOrders)
	v1.Get("/orders/:id", requireUser, h.HandleGetOrder)
	v1.Post("/orders/:id/confirm", internalOnly, h.HandleConfirmPayment)

	// Payment provider
	v1.Post("/webhooks/payment", h.HandlePaymentWebhook)

	// Operations
	v1.Get("/internal/stats", internalOnly, h.HandleStats)
}

func NewApiRouter(h *controllers.Handler, opts Options) *ApiRouter {
	return &ApiRouter{handler: h, opts: opts}
}
