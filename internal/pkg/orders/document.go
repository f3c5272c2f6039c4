package orders

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/statestore"
)

const (
	DocumentVersion = 1
	StoreName       = "orders"
)

// Document is the persisted snapshot of order state and webhook dedup.
type Document struct {
	Version         int                            `json:"version"`
	ProcessedEvents []models.ProcessedWebhookEvent `json:"processedEvents"`
	PaymentStatuses []models.OrderPaymentStatus    `json:"paymentStatuses"`
}

func EmptyDocument() Document {
	return Document{
		Version:         DocumentVersion,
		ProcessedEvents: []models.ProcessedWebhookEvent{},
		PaymentStatuses: []models.OrderPaymentStatus{},
	}
}

type rawDocument struct {
	Version         int               `json:"version"`
	ProcessedEvents []json.RawMessage `json:"processedEvents"`
	PaymentStatuses []json.RawMessage `json:"paymentStatuses"`
}

var Codec = statestore.Codec[Document]{
	Encode: func(doc Document) ([]byte, error) {
		return json.MarshalIndent(doc, "", "  ")
	},
	Decode: DecodeDocument,
}

// DecodeDocument parses a snapshot. Orders are validated on their core
// fields only, so a bad optional field never drops the order record.
func DecodeDocument(data []byte) (Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("invalid order snapshot: %w", err)
	}

	events, droppedEvents := statestore.DecodeRecords(raw.ProcessedEvents, checkEvent)
	statuses, droppedStatuses := statestore.DecodeRecords(raw.PaymentStatuses, checkOrder)
	if droppedEvents > 0 || droppedStatuses > 0 {
		log.Warnf("[Orders] Dropped %d malformed events and %d malformed orders during hydration", droppedEvents, droppedStatuses)
	}

	version := raw.Version
	if version == 0 {
		version = DocumentVersion
	}
	return Document{Version: version, ProcessedEvents: events, PaymentStatuses: statuses}, nil
}

func checkEvent(e models.ProcessedWebhookEvent) error {
	return models.ValidateRecord(e)
}

func checkOrder(o models.OrderPaymentStatus) error {
	return models.ValidateRecordFields(o, "OrderID", "Status", "UpdatedAt", "TotalAmount")
}
