package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/internal/pkg/billing"
	"github.com/ManuelReschke/ArtFox/internal/pkg/credits"
	"github.com/ManuelReschke/ArtFox/internal/pkg/generation"
	"github.com/ManuelReschke/ArtFox/internal/pkg/guard"
	"github.com/ManuelReschke/ArtFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ArtFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
	"github.com/ManuelReschke/ArtFox/internal/pkg/upload"
)

// QueueStats is the read side of the print data job queue.
type QueueStats interface {
	GetJobStats() map[jobqueue.JobStatus]int64
	GetQueueSize() int
}

// Handler bundles the domain services the HTTP endpoints delegate to.
// Generator may be nil when no generation provider is configured, Queue may
// be nil when no background worker runs.
type Handler struct {
	Ledger     *credits.Ledger
	Orders     *orders.State
	Reconciler *billing.Reconciler
	Generator  *generation.Service
	Queue      QueueStats
	Counters   *counter.Counters
}

// NewHandler wires the controllers.
func NewHandler(ledger *credits.Ledger, state *orders.State, reconciler *billing.Reconciler, generator *generation.Service) *Handler {
	return &Handler{
		Ledger:     ledger,
		Orders:     state,
		Reconciler: reconciler,
		Generator:  generator,
		Counters:   counter.New(),
	}
}

func errorResponse(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// respondError maps domain errors onto HTTP responses.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, credits.ErrNoCreditBalance):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "no_credit_balance",
			"message": "Credits have not been set up for this user",
			"action":  "setup_required",
		})
	case errors.Is(err, credits.ErrInsufficientCredits):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "insufficient_credits",
			"message": "No credits left",
			"action":  "buy_credits",
		})
	case errors.Is(err, guard.ErrBusy):
		return errorResponse(c, fiber.StatusTooManyRequests, "busy", "Another request for this user is still running")
	case errors.Is(err, billing.ErrSignatureNotConfigured),
		errors.Is(err, billing.ErrInvalidSignature):
		return errorResponse(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook signature rejected")
	case errors.Is(err, billing.ErrEventInFlight):
		return errorResponse(c, fiber.StatusConflict, "in_flight", "Event is already being processed")
	case errors.Is(err, orders.ErrOrderNotFound):
		return errorResponse(c, fiber.StatusNotFound, "not_found", "Order not found")
	case errors.Is(err, orders.ErrOrderExists):
		return errorResponse(c, fiber.StatusConflict, "order_exists", "Order already exists")
	case errors.Is(err, upload.ErrUploadTooLarge):
		return errorResponse(c, fiber.StatusRequestEntityTooLarge, "too_large", err.Error())
	case errors.Is(err, credits.ErrInvalidCreditAmount),
		errors.Is(err, credits.ErrInvalidReference),
		errors.Is(err, credits.ErrInvalidUser),
		errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, billing.ErrInvalidPayload),
		errors.Is(err, generation.ErrInvalidRequest):
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, generation.ErrProviderFailed):
		return errorResponse(c, fiber.StatusBadGateway, "generation_failed", "Artwork generation failed, no credit was charged")
	default:
		fiberlog.Errorf("[HTTP] Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Something went wrong")
	}
}
