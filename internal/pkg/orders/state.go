package orders

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/app/models"
)

// DefaultProcessedEventsCap bounds the webhook dedup ring.
const DefaultProcessedEventsCap = 1000

// Persister receives a full snapshot after every mutation.
type Persister interface {
	Persist(doc Document)
}

// StatusChange describes the outcome of ApplyStatus.
type StatusChange struct {
	OrderID  string
	Previous string
	Current  string
	// Applied is false when the update was a regression and got ignored.
	Applied bool
	// Created is true when no order existed and a minimal record was made.
	Created bool
	// Completed is true only on the transition into COMPLETED.
	Completed bool
}

// State holds order records and processed webhook events. Every mutation
// runs under one mutex and persists a snapshot before returning.
type State struct {
	store     Persister
	eventsCap int
	now       func() time.Time

	mu        sync.Mutex
	orders    map[string]*models.OrderPaymentStatus
	orderIDs  []string
	events    []models.ProcessedWebhookEvent
	eventSeen map[string]struct{}
}

// NewState builds order state from a hydrated document. store may be nil.
func NewState(store Persister, eventsCap int, doc Document) *State {
	if eventsCap <= 0 {
		eventsCap = DefaultProcessedEventsCap
	}
	s := &State{
		store:     store,
		eventsCap: eventsCap,
		now:       time.Now,
		orders:    make(map[string]*models.OrderPaymentStatus, len(doc.PaymentStatuses)),
		eventSeen: make(map[string]struct{}, len(doc.ProcessedEvents)),
	}
	for _, o := range doc.PaymentStatuses {
		order := o.Clone()
		s.putLocked(&order)
	}
	for _, e := range doc.ProcessedEvents {
		s.appendEventLocked(e)
	}
	log.Infof("[Orders] State loaded with %d orders and %d processed events", len(s.orders), len(s.events))
	return s
}

// Create records a new order as PENDING.
func (s *State) Create(order models.OrderPaymentStatus) (models.OrderPaymentStatus, error) {
	order.OrderID = strings.TrimSpace(order.OrderID)
	if order.OrderID == "" {
		return models.OrderPaymentStatus{}, ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.OrderID]; exists {
		return models.OrderPaymentStatus{}, ErrOrderExists
	}

	now := s.now()
	order = order.Clone()
	order.Status = models.PaymentStatusPending
	order.CouponUsed = false
	order.CreatedAt = &now
	order.UpdatedAt = now
	s.putLocked(&order)
	s.persistLocked()

	log.Infof("[Orders] Created order %s for user %s (total=%d)", order.OrderID, order.UserID, order.TotalAmount)
	return order.Clone(), nil
}

// Upsert stores order as given, replacing any existing record.
func (s *State) Upsert(order models.OrderPaymentStatus) (models.OrderPaymentStatus, error) {
	order.OrderID = strings.TrimSpace(order.OrderID)
	if order.OrderID == "" {
		return models.OrderPaymentStatus{}, ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	order = order.Clone()
	if order.Status == "" {
		order.Status = models.PaymentStatusPending
	}
	if order.CreatedAt == nil {
		if existing, ok := s.orders[order.OrderID]; ok && existing.CreatedAt != nil {
			created := *existing.CreatedAt
			order.CreatedAt = &created
		} else {
			order.CreatedAt = &now
		}
	}
	order.UpdatedAt = now
	s.putLocked(&order)
	s.persistLocked()
	return order.Clone(), nil
}

func (s *State) Get(orderID string) (models.OrderPaymentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return models.OrderPaymentStatus{}, false
	}
	return order.Clone(), true
}

// ListByPrintDataStatus returns the orders whose print data is in status, in
// creation order.
func (s *State) ListByPrintDataStatus(status string) []models.OrderPaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.OrderPaymentStatus, 0)
	for _, id := range s.orderIDs {
		if order := s.orders[id]; order.PrintDataStatus == status {
			out = append(out, order.Clone())
		}
	}
	return out
}

// ListByUser returns the user's orders in creation order.
func (s *State) ListByUser(userID string) []models.OrderPaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.OrderPaymentStatus, 0)
	for _, id := range s.orderIDs {
		if order := s.orders[id]; order.UserID == userID {
			out = append(out, order.Clone())
		}
	}
	return out
}

// ApplyStatus is the single status update path. A status ranked below the
// current one is ignored and COMPLETED is never left. Unknown orders get a
// minimal record so a payment is never lost.
func (s *State) ApplyStatus(orderID, paymentID, status string) (StatusChange, error) {
	orderID = strings.TrimSpace(orderID)
	status = NormalizeStatus(status)
	if orderID == "" || status == "" {
		return StatusChange{}, ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	change := StatusChange{OrderID: orderID, Current: status}
	order, ok := s.orders[orderID]
	if !ok {
		log.Warnf("[Orders] Status %s for unknown order %s, creating minimal record", status, orderID)
		now := s.now()
		order = &models.OrderPaymentStatus{OrderID: orderID, CreatedAt: &now}
		s.putLocked(order)
		change.Created = true
	} else {
		change.Previous = order.Status
		if !CanTransition(order.Status, status) {
			log.Warnf("[Orders] Ignoring status regression %s -> %s for order %s", order.Status, status, orderID)
			change.Current = order.Status
			return change, nil
		}
	}

	order.Status = status
	if paymentID != "" {
		order.PaymentID = paymentID
	}
	order.UpdatedAt = s.now()
	change.Applied = true
	change.Completed = status == models.PaymentStatusCompleted && change.Previous != models.PaymentStatusCompleted
	s.persistLocked()

	log.Infof("[Orders] Order %s status %s -> %s", orderID, displayStatus(change.Previous), status)
	return change, nil
}

// HasProcessed reports whether a webhook event was already applied.
func (s *State) HasProcessed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.eventSeen[eventID]
	return ok
}

// MarkProcessed records an applied event. Known ids are ignored; the oldest
// entries are evicted once the ring exceeds its cap.
func (s *State) MarkProcessed(event models.ProcessedWebhookEvent) {
	if event.EventID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.eventSeen[event.EventID]; ok {
		return
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}
	s.appendEventLocked(event)
	s.persistLocked()
}

// ClaimCoupon flips couponUsed to true if a coupon is attached and unused.
func (s *State) ClaimCoupon(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || !order.HasUnusedCoupon() {
		return false
	}
	order.CouponUsed = true
	order.UpdatedAt = s.now()
	s.persistLocked()
	return true
}

// UnclaimCoupon reverts a claim after a failed redemption.
func (s *State) UnclaimCoupon(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || !order.CouponUsed {
		return
	}
	order.CouponUsed = false
	order.UpdatedAt = s.now()
	s.persistLocked()
}

// SetPrintData records the print-data outcome on the order.
func (s *State) SetPrintData(orderID, status, url, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.PrintDataStatus = status
	order.PrintDataURL = url
	order.PrintDataError = errMsg
	order.UpdatedAt = s.now()
	s.persistLocked()
	return nil
}

// Snapshot returns a copy of the full order state.
func (s *State) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// putLocked stores order. Seq is its position in creation order and survives
// replacement.
func (s *State) putLocked(order *models.OrderPaymentStatus) {
	if existing, exists := s.orders[order.OrderID]; exists {
		order.Seq = existing.Seq
	} else {
		s.orderIDs = append(s.orderIDs, order.OrderID)
		order.Seq = int64(len(s.orderIDs))
	}
	s.orders[order.OrderID] = order
}

func (s *State) appendEventLocked(event models.ProcessedWebhookEvent) {
	if _, ok := s.eventSeen[event.EventID]; ok {
		return
	}
	s.events = append(s.events, event)
	s.eventSeen[event.EventID] = struct{}{}
	for len(s.events) > s.eventsCap {
		delete(s.eventSeen, s.events[0].EventID)
		s.events = s.events[1:]
	}
}

func (s *State) snapshotLocked() Document {
	doc := Document{
		Version:         DocumentVersion,
		ProcessedEvents: append([]models.ProcessedWebhookEvent(nil), s.events...),
		PaymentStatuses: make([]models.OrderPaymentStatus, 0, len(s.orderIDs)),
	}
	if doc.ProcessedEvents == nil {
		doc.ProcessedEvents = []models.ProcessedWebhookEvent{}
	}
	for _, id := range s.orderIDs {
		doc.PaymentStatuses = append(doc.PaymentStatuses, s.orders[id].Clone())
	}
	return doc
}

func (s *State) persistLocked() {
	if s.store == nil {
		return
	}
	s.store.Persist(s.snapshotLocked())
}

func displayStatus(status string) string {
	if status == "" {
		return "<none>"
	}
	return status
}
