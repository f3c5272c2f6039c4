package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
)

var (
	ErrSignatureNotConfigured = errors.New("webhook signature verification is not configured")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrInvalidPayload         = errors.New("invalid webhook payload")
	ErrEventInFlight          = errors.New("webhook event is already being processed")
)

// OrderStore is the order state the reconciler mutates.
type OrderStore interface {
	Get(orderID string) (models.OrderPaymentStatus, bool)
	ApplyStatus(orderID, paymentID, status string) (orders.StatusChange, error)
	HasProcessed(eventID string) bool
	MarkProcessed(event models.ProcessedWebhookEvent)
	ClaimCoupon(orderID string) bool
	UnclaimCoupon(orderID string)
}

// PrintDataTrigger starts print-data generation for a completed order. It
// must not block on the generation itself.
type PrintDataTrigger interface {
	Trigger(ctx context.Context, orderID string) error
}

// WebhookResult summarizes what a delivery changed.
type WebhookResult struct {
	EventID            string `json:"eventId"`
	Duplicate          bool   `json:"duplicate"`
	Ignored            bool   `json:"ignored,omitempty"`
	OrderID            string `json:"orderId,omitempty"`
	Status             string `json:"status,omitempty"`
	Applied            bool   `json:"applied"`
	CouponRedeemed     bool   `json:"couponRedeemed,omitempty"`
	PrintDataTriggered bool   `json:"printDataTriggered,omitempty"`
}

// Reconciler applies payment provider events and direct confirmations to
// order state.
type Reconciler struct {
	verifier *SignatureVerifier
	orders   OrderStore
	coupons  CouponRedeemer
	printer  PrintDataTrigger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewReconciler wires the reconciler. coupons and printer may be nil.
func NewReconciler(verifier *SignatureVerifier, store OrderStore, coupons CouponRedeemer, printer PrintDataTrigger) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		orders:   store,
		coupons:  coupons,
		printer:  printer,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// HandleWebhook verifies, dedupes and applies one delivery. The event is
// marked processed only after every side effect has been dispatched, so a
// crash mid-way leads to reprocessing rather than loss.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if !r.verifier.Configured() {
		return WebhookResult{}, ErrSignatureNotConfigured
	}
	if !r.verifier.Verify(payload, signature) {
		log.Warnf("[Billing] Rejected webhook with invalid signature")
		return WebhookResult{}, ErrInvalidSignature
	}

	event, err := ParsePaymentWebhook(payload)
	if err != nil {
		return WebhookResult{}, errors.Join(ErrInvalidPayload, err)
	}
	result := WebhookResult{EventID: event.EventID, OrderID: event.OrderID, Status: event.Status}

	if r.orders.HasProcessed(event.EventID) {
		log.Infof("[Billing] Duplicate webhook event %s ignored", event.EventID)
		result.Duplicate = true
		return result, nil
	}

	release, ok := r.enter(event.EventID)
	if !ok {
		return result, ErrEventInFlight
	}
	defer release()

	// A concurrent delivery may have finished between the check and enter.
	if r.orders.HasProcessed(event.EventID) {
		result.Duplicate = true
		return result, nil
	}

	if event.HashedID {
		log.Warnf("[Billing] Webhook without event id, using %s", event.EventID)
	}
	if !event.HasPayment() {
		log.Warnf("[Billing] Webhook %s (%s) carries no payment order/status, nothing to apply", event.EventID, event.EventType)
		result.Ignored = true
	} else {
		outcome, err := r.applyPayment(ctx, event.OrderID, event.PaymentID, event.Status)
		if err != nil {
			return result, err
		}
		result.Applied = outcome.change.Applied
		result.Status = outcome.change.Current
		result.CouponRedeemed = outcome.couponRedeemed
		result.PrintDataTriggered = outcome.printTriggered
	}

	r.orders.MarkProcessed(models.ProcessedWebhookEvent{
		EventID:    event.EventID,
		EventType:  event.EventType,
		ReceivedAt: r.now(),
		OrderID:    event.OrderID,
		PaymentID:  event.PaymentID,
		Status:     event.Status,
	})
	return result, nil
}

// ConfirmPayment applies a status reported directly by the payment API
// through the same path as webhooks.
func (r *Reconciler) ConfirmPayment(ctx context.Context, orderID, paymentID, status string) (WebhookResult, error) {
	if _, ok := r.orders.Get(orderID); !ok {
		return WebhookResult{}, orders.ErrOrderNotFound
	}
	outcome, err := r.applyPayment(ctx, orderID, paymentID, status)
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{
		OrderID:            orderID,
		Status:             outcome.change.Current,
		Applied:            outcome.change.Applied,
		CouponRedeemed:     outcome.couponRedeemed,
		PrintDataTriggered: outcome.printTriggered,
	}, nil
}

type paymentOutcome struct {
	change         orders.StatusChange
	couponRedeemed bool
	printTriggered bool
}

func (r *Reconciler) applyPayment(ctx context.Context, orderID, paymentID, status string) (paymentOutcome, error) {
	var out paymentOutcome
	status = orders.NormalizeStatus(status)

	if status == models.PaymentStatusCompleted {
		out.couponRedeemed = r.redeemCoupon(ctx, orderID)
	}

	change, err := r.orders.ApplyStatus(orderID, paymentID, status)
	if err != nil {
		return out, err
	}
	out.change = change

	if change.Completed && r.printer != nil {
		if err := r.printer.Trigger(ctx, orderID); err != nil {
			log.Errorf("[Billing] Failed to trigger print data for order %s: %v", orderID, err)
		} else {
			out.printTriggered = true
		}
	}
	return out, nil
}

// redeemCoupon claims the order's coupon locally, confirms it remotely and
// reverts the claim if the remote side refuses or fails.
func (r *Reconciler) redeemCoupon(ctx context.Context, orderID string) bool {
	if r.coupons == nil {
		return false
	}
	order, ok := r.orders.Get(orderID)
	if !ok || !order.HasUnusedCoupon() {
		return false
	}
	if !r.orders.ClaimCoupon(orderID) {
		return false
	}

	success, err := r.coupons.Redeem(ctx, order.CouponCode)
	if err != nil || !success {
		r.orders.UnclaimCoupon(orderID)
		if err != nil {
			log.Errorf("[Billing] Coupon %s redemption for order %s failed: %v", order.CouponCode, orderID, err)
		} else {
			log.Warnf("[Billing] Coupon %s for order %s was rejected", order.CouponCode, orderID)
		}
		return false
	}
	log.Infof("[Billing] Coupon %s redeemed for order %s", order.CouponCode, orderID)
	return true
}

func (r *Reconciler) enter(eventID string) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[eventID]; busy {
		return nil, false
	}
	r.inFlight[eventID] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.inFlight, eventID)
		r.mu.Unlock()
	}, true
}
