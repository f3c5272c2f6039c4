package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// PaymentWebhookEvent is the part of a provider notification used for
// reconciliation.
type PaymentWebhookEvent struct {
	EventID   string
	EventType string
	PaymentID string
	OrderID   string
	Status    string
	// HashedID is true when the payload had no event id.
	HashedID bool
}

// HasPayment reports whether the event carries an order and a status.
func (e PaymentWebhookEvent) HasPayment() bool {
	return e.OrderID != "" && e.Status != ""
}

// ParsePaymentWebhook extracts event id, type and payment fields. A missing
// event id is replaced by a hash of the body so redeliveries still dedupe.
func ParsePaymentWebhook(payload []byte) (*PaymentWebhookEvent, error) {
	type rawPayload struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
		Data    struct {
			Object struct {
				Payment *struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
					Status  string `json:"status"`
				} `json:"payment"`
			} `json:"object"`
		} `json:"data"`
	}

	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	out := &PaymentWebhookEvent{
		EventID:   strings.TrimSpace(raw.EventID),
		EventType: strings.TrimSpace(raw.Type),
	}
	if out.EventID == "" {
		sum := sha256.Sum256(payload)
		out.EventID = "hash:" + hex.EncodeToString(sum[:])
		out.HashedID = true
	}
	if p := raw.Data.Object.Payment; p != nil {
		out.PaymentID = strings.TrimSpace(p.ID)
		out.OrderID = strings.TrimSpace(p.OrderID)
		out.Status = strings.ToUpper(strings.TrimSpace(p.Status))
	}
	return out, nil
}
