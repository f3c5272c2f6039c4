package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ArtFox/internal/pkg/billing"
	"github.com/ManuelReschke/ArtFox/internal/pkg/metrics/counter"
)

// HandlePaymentWebhook receives signed payment provider notifications.
// Duplicates are acknowledged with 200 so the provider stops retrying.
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	result, err := h.Reconciler.HandleWebhook(c.UserContext(), c.Body(), c.Get(billing.SignatureHeader))
	if err != nil {
		h.Counters.Inc(counter.WebhooksRejected)
		return respondError(c, err)
	}
	h.countPayment(result)
	return c.JSON(result)
}

func (h *Handler) countPayment(result billing.WebhookResult) {
	if result.Duplicate {
		h.Counters.Inc(counter.WebhooksDuplicate)
		return
	}
	if result.Applied {
		h.Counters.Inc(counter.WebhooksApplied)
	}
	if result.CouponRedeemed {
		h.Counters.Inc(counter.CouponsRedeemed)
	}
	if result.PrintDataTriggered {
		h.Counters.Inc(counter.PrintDataTriggered)
	}
}
