package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
	"github.com/ManuelReschke/ArtFox/internal/pkg/usercontext"
)

type createOrderRequest struct {
	OrderID         string                  `json:"orderId" validate:"required,max=191"`
	PaymentID       string                  `json:"paymentId" validate:"max=191"`
	TotalAmount     int64                   `json:"totalAmount" validate:"min=0"`
	Items           []models.OrderItem      `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *models.ShippingAddress `json:"shippingAddress"`
	CouponCode      string                  `json:"couponCode" validate:"max=64"`
	GiftInfo        *models.GiftInfo        `json:"giftInfo"`
}

// HandleCreateOrder records a new PENDING order for the caller.
func (h *Handler) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.CouponCode = strings.TrimSpace(req.CouponCode)
	if err := models.Validator().Struct(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	order, err := h.Orders.Create(models.OrderPaymentStatus{
		OrderID:         req.OrderID,
		PaymentID:       req.PaymentID,
		UserID:          usercontext.GetUserID(c),
		TotalAmount:     req.TotalAmount,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		CouponCode:      req.CouponCode,
		GiftInfo:        req.GiftInfo,
	})
	if err != nil {
		return respondError(c, err)
	}
	h.Counters.Inc(counter.OrdersCreated)
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleListOrders returns the caller's orders in creation order.
func (h *Handler) HandleListOrders(c *fiber.Ctx) error {
	list := h.Orders.ListByUser(usercontext.GetUserID(c))
	if list == nil {
		list = []models.OrderPaymentStatus{}
	}
	return c.JSON(fiber.Map{"orders": list})
}

// HandleGetOrder returns one order. Orders of other users are reported as
// not found.
func (h *Handler) HandleGetOrder(c *fiber.Ctx) error {
	order, ok := h.Orders.Get(c.Params("id"))
	if !ok || order.UserID != usercontext.GetUserID(c) {
		return respondError(c, orders.ErrOrderNotFound)
	}
	return c.JSON(order)
}

type confirmPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"max=191"`
	Status    string `json:"status" validate:"required,max=32"`
}

// HandleConfirmPayment applies a status that the checkout backend read
// directly from the payment API.
func (h *Handler) HandleConfirmPayment(c *fiber.Ctx) error {
	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	req.Status = strings.TrimSpace(req.Status)
	if err := models.Validator().Struct(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	orderID := utils.CopyString(c.Params("id"))
	result, err := h.Reconciler.ConfirmPayment(c.UserContext(), orderID, strings.TrimSpace(req.PaymentID), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	h.countPayment(result)
	return c.JSON(result)
}
