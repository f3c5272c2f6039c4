package models

import "time"

// Payment status values reported by the payment provider.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCanceled  = "CANCELED"
)

// Print data generation states recorded on an order.
const (
	PrintDataStatusProcessing = "processing"
	PrintDataStatusCompleted  = "completed"
	PrintDataStatusFailed     = "failed"
)

// OrderItem is a purchased rendition of a generated artwork.
type OrderItem struct {
	ProductID string `json:"productId" validate:"required,max=100"`
	ProjectID string `json:"projectId,omitempty" validate:"max=100"`
	Format    string `json:"format,omitempty" validate:"max=50"` // digital, poster, canvas, ...
	Size      string `json:"size,omitempty" validate:"max=50"`
	Quantity  int    `json:"quantity" validate:"min=1,max=100"`
	UnitPrice int64  `json:"unitPrice" validate:"min=0"` // minor currency units
	ImageURL  string `json:"imageUrl,omitempty" validate:"omitempty,max=2048"`
}

// ShippingAddress is only present for physical renditions.
type ShippingAddress struct {
	Name       string `json:"name" validate:"required,max=200"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	City       string `json:"city" validate:"required,max=100"`
	Country    string `json:"country" validate:"required,len=2"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

// GiftInfo carries an optional gift message printed with the order.
type GiftInfo struct {
	IsGift    bool   `json:"isGift"`
	Recipient string `json:"recipient,omitempty" validate:"max=200"`
	Message   string `json:"message,omitempty" validate:"max=1000"`
}

// OrderPaymentStatus is the durable order record and the single source of
// truth for its payment lifecycle.
type OrderPaymentStatus struct {
	OrderID         string           `gorm:"primaryKey;type:varchar(191)" json:"orderId" validate:"required,max=191"`
	PaymentID       string           `gorm:"type:varchar(191);index" json:"paymentId"`
	Status          string           `gorm:"type:varchar(32);not null;index" json:"status" validate:"required,max=32"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime:false" json:"updatedAt" validate:"required"`
	UserID          string           `gorm:"type:varchar(191);index" json:"userId,omitempty"`
	TotalAmount     int64            `gorm:"not null;default:0" json:"totalAmount,omitempty" validate:"min=0"`
	CreatedAt       *time.Time       `gorm:"autoCreateTime:false" json:"createdAt,omitempty"`
	Items           []OrderItem      `gorm:"serializer:json;type:text" json:"items,omitempty" validate:"omitempty,dive"`
	ShippingAddress *ShippingAddress `gorm:"serializer:json;type:text" json:"shippingAddress,omitempty"`
	CouponCode      string           `gorm:"type:varchar(64)" json:"couponCode,omitempty"`
	CouponUsed      bool             `gorm:"not null;default:false" json:"couponUsed"`
	GiftInfo        *GiftInfo        `gorm:"serializer:json;type:text" json:"giftInfo,omitempty"`
	PrintDataStatus string           `gorm:"type:varchar(20)" json:"printDataStatus,omitempty"`
	PrintDataURL    string           `gorm:"type:varchar(2048)" json:"printDataUrl,omitempty"`
	PrintDataError  string           `gorm:"type:text" json:"printDataError,omitempty"`
	// Seq keeps creation order in the normalized table; it is not part of the snapshot.
	Seq             int64            `gorm:"not null;default:0;index" json:"-"`
}

// HasUnusedCoupon reports whether a coupon is attached and not yet claimed.
func (o OrderPaymentStatus) HasUnusedCoupon() bool {
	return o.CouponCode != "" && !o.CouponUsed
}

// Clone returns a copy that shares no slices or pointers with o.
func (o OrderPaymentStatus) Clone() OrderPaymentStatus {
	out := o
	if o.CreatedAt != nil {
		t := *o.CreatedAt
		out.CreatedAt = &t
	}
	if o.Items != nil {
		out.Items = append([]OrderItem(nil), o.Items...)
	}
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		out.ShippingAddress = &addr
	}
	if o.GiftInfo != nil {
		gift := *o.GiftInfo
		out.GiftInfo = &gift
	}
	return out
}
