package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditTransactionType_IsValid(t *testing.T) {
	assert.True(t, CreditTransactionGrantFree.IsValid())
	assert.True(t, CreditTransactionConsume.IsValid())
	assert.True(t, CreditTransactionPurchase.IsValid())
	assert.False(t, CreditTransactionType("refund").IsValid())
}

func TestCreditTransaction_IsConsistent(t *testing.T) {
	assert.True(t, CreditTransaction{Amount: -1, FreeAmount: -1}.IsConsistent())
	assert.False(t, CreditTransaction{Amount: 5, PaidAmount: 4}.IsConsistent())
	assert.Equal(t, 7, CreditBalance{FreeRemaining: 2, PaidRemaining: 5}.Remaining())
}

func TestOrderPaymentStatus_CloneSharesNothing(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := OrderPaymentStatus{
		OrderID:         "order-1",
		CreatedAt:       &created,
		Items:           []OrderItem{{ProductID: "poster-a3", Quantity: 1}},
		ShippingAddress: &ShippingAddress{Name: "Kim", City: "Berlin"},
		GiftInfo:        &GiftInfo{IsGift: true, Message: "Happy birthday"},
	}

	clone := order.Clone()
	clone.Items[0].Quantity = 9
	clone.ShippingAddress.City = "Hamburg"
	clone.GiftInfo.Message = "changed"
	*clone.CreatedAt = created.Add(time.Hour)

	assert.Equal(t, 1, order.Items[0].Quantity)
	assert.Equal(t, "Berlin", order.ShippingAddress.City)
	assert.Equal(t, "Happy birthday", order.GiftInfo.Message)
	assert.Equal(t, created, *order.CreatedAt)
}

func TestOrderPaymentStatus_HasUnusedCoupon(t *testing.T) {
	assert.False(t, OrderPaymentStatus{}.HasUnusedCoupon())
	assert.True(t, OrderPaymentStatus{CouponCode: "SPRING10"}.HasUnusedCoupon())
	assert.False(t, OrderPaymentStatus{CouponCode: "SPRING10", CouponUsed: true}.HasUnusedCoupon())
}

func TestValidateRecord(t *testing.T) {
	now := time.Now()
	require.NoError(t, ValidateRecord(CreditBalance{UserID: "u", CreatedAt: now, UpdatedAt: now}))
	assert.Error(t, ValidateRecord(CreditBalance{UserID: "u", FreeRemaining: -1, CreatedAt: now, UpdatedAt: now}))
	assert.Error(t, ValidateRecord(ProcessedWebhookEvent{EventID: "evt-1"}))

	order := OrderPaymentStatus{OrderID: "o", ShippingAddress: &ShippingAddress{Country: "Germany"}}
	assert.NoError(t, ValidateRecordFields(order, "OrderID"))
	assert.Error(t, ValidateRecordFields(order, "Status"))
}
