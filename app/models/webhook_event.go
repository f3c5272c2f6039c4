package models

import "time"

// ProcessedWebhookEvent remembers a payment provider event that has already
// been applied, so redeliveries can be short-circuited.
type ProcessedWebhookEvent struct {
	EventID    string    `gorm:"primaryKey;type:varchar(191)" json:"eventId" validate:"required,max=191"`
	EventType  string    `gorm:"type:varchar(100);index" json:"eventType"`
	ReceivedAt time.Time `gorm:"not null;index" json:"receivedAt" validate:"required"`
	OrderID    string    `gorm:"type:varchar(191);index" json:"orderId,omitempty"`
	PaymentID  string    `gorm:"type:varchar(191)" json:"paymentId,omitempty"`
	Status     string    `gorm:"type:varchar(32)" json:"status,omitempty"`
}
