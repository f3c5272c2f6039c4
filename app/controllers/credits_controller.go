package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/credits"
	"github.com/ManuelReschke/ArtFox/internal/pkg/usercontext"
)

func balanceResponse(b models.CreditBalance) fiber.Map {
	return fiber.Map{
		"userId":        b.UserID,
		"freeRemaining": b.FreeRemaining,
		"paidRemaining": b.PaidRemaining,
		"remaining":     b.Remaining(),
		"totalUsed":     b.TotalUsed,
		"updatedAt":     b.UpdatedAt,
	}
}

// HandleGetCredits returns the caller's balance.
func (h *Handler) HandleGetCredits(c *fiber.Ctx) error {
	bal, ok := h.Ledger.GetBalance(usercontext.GetUserID(c))
	if !ok {
		return respondError(c, credits.ErrNoCreditBalance)
	}
	return c.JSON(balanceResponse(bal))
}

// HandleInitCredits creates the caller's balance with the free grant. Calling
// it again returns the existing balance.
func (h *Handler) HandleInitCredits(c *fiber.Ctx) error {
	bal, err := h.Ledger.Initialize(usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(balanceResponse(bal))
}

// HandleListTransactions returns the caller's ledger, oldest first.
func (h *Handler) HandleListTransactions(c *fiber.Ctx) error {
	txs := h.Ledger.ListTransactions(usercontext.GetUserID(c))
	if txs == nil {
		txs = []models.CreditTransaction{}
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

type purchaseRequest struct {
	UserID      string `json:"userId" validate:"required,max=191"`
	Amount      int    `json:"amount" validate:"required,min=1"`
	ReferenceID string `json:"referenceId" validate:"required,max=191"`
}

// HandlePurchaseCredits credits a completed purchase. Only the checkout
// backend calls it, retries with the same referenceId are safe.
func (h *Handler) HandlePurchaseCredits(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	if err := models.Validator().Struct(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	tx, err := h.Ledger.AddPurchased(req.UserID, req.Amount, req.ReferenceID)
	if err != nil {
		return respondError(c, err)
	}
	bal, _ := h.Ledger.GetBalance(req.UserID)
	return c.JSON(fiber.Map{
		"transaction": tx,
		"balance":     balanceResponse(bal),
	})
}
