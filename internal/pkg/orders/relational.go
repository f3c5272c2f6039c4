package orders

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ArtFox/app/models"
)

const saveBatchSize = 200

// RelationalBackend keeps order state in the order_payment_statuses and
// processed_webhook_events tables. After a Load or Save it only writes the
// orders and events that changed since.
type RelationalBackend struct {
	db *gorm.DB

	mu     sync.Mutex
	synced bool
	orders map[string]models.OrderPaymentStatus
	events map[string]struct{}
}

func NewRelationalBackend(db *gorm.DB) *RelationalBackend {
	return &RelationalBackend{
		db:     db,
		orders: make(map[string]models.OrderPaymentStatus),
		events: make(map[string]struct{}),
	}
}

func (b *RelationalBackend) Name() string {
	return "db:order_tables"
}

func (b *RelationalBackend) Load(ctx context.Context) (Document, bool, error) {
	var statuses []models.OrderPaymentStatus
	if err := b.db.WithContext(ctx).Order("seq ASC, created_at ASC, order_id ASC").Find(&statuses).Error; err != nil {
		return Document{}, false, fmt.Errorf("failed to load order statuses: %w", err)
	}
	var events []models.ProcessedWebhookEvent
	if err := b.db.WithContext(ctx).Order("received_at ASC").Find(&events).Error; err != nil {
		return Document{}, false, fmt.Errorf("failed to load processed events: %w", err)
	}
	b.mu.Lock()
	b.resetLocked(statuses, events)
	b.mu.Unlock()
	if len(statuses) == 0 && len(events) == 0 {
		return Document{}, false, nil
	}

	doc := Document{Version: DocumentVersion}
	for _, o := range statuses {
		if err := checkOrder(o); err != nil {
			log.Warnf("[Orders] Skipping malformed order row %q: %v", o.OrderID, err)
			continue
		}
		doc.PaymentStatuses = append(doc.PaymentStatuses, o)
	}
	for _, e := range events {
		if err := checkEvent(e); err != nil {
			log.Warnf("[Orders] Skipping malformed event row %q: %v", e.EventID, err)
			continue
		}
		doc.ProcessedEvents = append(doc.ProcessedEvents, e)
	}
	return doc, true, nil
}

// Save upserts changed orders, inserts new events and prunes events that fell
// out of the dedup ring. Until the backend has loaded or saved once it writes
// the whole document.
func (b *RelationalBackend) Save(ctx context.Context, doc Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	diff := diffDocument(b.orders, b.events, doc)
	if b.synced && diff.empty() {
		return nil
	}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(diff.orders) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "order_id"}},
				UpdateAll: true,
			}).CreateInBatches(diff.orders, saveBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save order statuses: %w", err)
			}
		}
		if len(diff.newEvents) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(diff.newEvents, saveBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save processed events: %w", err)
			}
		}
		return b.pruneEvents(tx, doc, diff)
	})
	if err != nil {
		return err
	}
	b.resetLocked(doc.PaymentStatuses, doc.ProcessedEvents)
	return nil
}

func (b *RelationalBackend) pruneEvents(tx *gorm.DB, doc Document, diff documentDiff) error {
	var err error
	switch {
	case b.synced:
		if len(diff.droppedEvents) == 0 {
			return nil
		}
		err = tx.Where("event_id IN ?", diff.droppedEvents).Delete(&models.ProcessedWebhookEvent{}).Error
	case len(doc.ProcessedEvents) == 0:
		err = tx.Where("1 = 1").Delete(&models.ProcessedWebhookEvent{}).Error
	default:
		ids := make([]string, 0, len(doc.ProcessedEvents))
		for _, e := range doc.ProcessedEvents {
			ids = append(ids, e.EventID)
		}
		err = tx.Where("event_id NOT IN ?", ids).Delete(&models.ProcessedWebhookEvent{}).Error
	}
	if err != nil {
		return fmt.Errorf("failed to prune processed events: %w", err)
	}
	return nil
}

func (b *RelationalBackend) resetLocked(statuses []models.OrderPaymentStatus, events []models.ProcessedWebhookEvent) {
	b.orders = make(map[string]models.OrderPaymentStatus, len(statuses))
	for _, o := range statuses {
		b.orders[o.OrderID] = o.Clone()
	}
	b.events = make(map[string]struct{}, len(events))
	for _, e := range events {
		b.events[e.EventID] = struct{}{}
	}
	b.synced = true
}

type documentDiff struct {
	orders        []models.OrderPaymentStatus
	newEvents     []models.ProcessedWebhookEvent
	droppedEvents []string
}

func (d documentDiff) empty() bool {
	return len(d.orders) == 0 && len(d.newEvents) == 0 && len(d.droppedEvents) == 0
}

// diffDocument compares doc with the rows last known to be stored.
func diffDocument(stored map[string]models.OrderPaymentStatus, storedEvents map[string]struct{}, doc Document) documentDiff {
	var diff documentDiff
	for _, o := range doc.PaymentStatuses {
		if prev, ok := stored[o.OrderID]; ok && sameOrder(prev, o) {
			continue
		}
		diff.orders = append(diff.orders, o)
	}

	current := make(map[string]struct{}, len(doc.ProcessedEvents))
	for _, e := range doc.ProcessedEvents {
		current[e.EventID] = struct{}{}
		if _, ok := storedEvents[e.EventID]; !ok {
			diff.newEvents = append(diff.newEvents, e)
		}
	}
	for id := range storedEvents {
		if _, ok := current[id]; !ok {
			diff.droppedEvents = append(diff.droppedEvents, id)
		}
	}
	sort.Strings(diff.droppedEvents)
	return diff
}

func sameOrder(a, b models.OrderPaymentStatus) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) || a.Seq != b.Seq {
		return false
	}
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	if a.CreatedAt != nil && b.CreatedAt != nil && a.CreatedAt.Equal(*b.CreatedAt) {
		a.CreatedAt, b.CreatedAt = nil, nil
	}
	return reflect.DeepEqual(a, b)
}
