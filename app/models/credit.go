package models

import "time"

// CreditTransactionType classifies a ledger entry.
type CreditTransactionType string

const (
	CreditTransactionGrantFree CreditTransactionType = "grant_free"
	CreditTransactionConsume   CreditTransactionType = "consume"
	CreditTransactionPurchase  CreditTransactionType = "purchase"
)

// IsValid reports whether t is one of the known ledger entry types.
func (t CreditTransactionType) IsValid() bool {
	switch t {
	case CreditTransactionGrantFree, CreditTransactionConsume, CreditTransactionPurchase:
		return true
	default:
		return false
	}
}

// CreditBalance holds the two credit pools of a user. It is created lazily on
// first use and never deleted.
type CreditBalance struct {
	UserID        string    `gorm:"primaryKey;type:varchar(191)" json:"userId" validate:"required,max=191"`
	FreeRemaining int       `gorm:"not null;default:0" json:"freeRemaining" validate:"min=0"`
	PaidRemaining int       `gorm:"not null;default:0" json:"paidRemaining" validate:"min=0"`
	TotalUsed     int       `gorm:"not null;default:0" json:"totalUsed" validate:"min=0"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false" json:"createdAt" validate:"required"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false" json:"updatedAt" validate:"required"`
}

// Remaining returns the total number of spendable credits.
func (b CreditBalance) Remaining() int {
	return b.FreeRemaining + b.PaidRemaining
}

// CreditTransaction is an immutable ledger entry. FreeAmount and PaidAmount are
// signed deltas applied to the pools; BalanceAfter* snapshot the pools after
// the mutation.
type CreditTransaction struct {
	ID               string                `gorm:"primaryKey;type:varchar(64)" json:"id" validate:"required,max=64"`
	UserID           string                `gorm:"type:varchar(191);not null;index:idx_credit_transactions_user_ref,priority:1" json:"userId" validate:"required,max=191"`
	Type             CreditTransactionType `gorm:"type:varchar(20);not null;index" json:"type" validate:"required"`
	Amount           int                   `gorm:"not null" json:"amount"`
	FreeAmount       int                   `gorm:"not null" json:"freeAmount"`
	PaidAmount       int                   `gorm:"not null" json:"paidAmount"`
	BalanceAfterFree int                   `gorm:"not null" json:"balanceAfterFree" validate:"min=0"`
	BalanceAfterPaid int                   `gorm:"not null" json:"balanceAfterPaid" validate:"min=0"`
	ReferenceID      string                `gorm:"type:varchar(191);index:idx_credit_transactions_user_ref,priority:2" json:"referenceId,omitempty"`
	Description      string                `gorm:"type:varchar(255)" json:"description,omitempty"`
	Timestamp        time.Time             `gorm:"not null;index" json:"timestamp" validate:"required"`
	// Seq keeps insertion order in the normalized table; it is not part of the snapshot.
	Seq int64 `gorm:"not null;default:0;index" json:"-"`
}

// IsConsistent reports whether the signed total matches the per-pool deltas.
func (t CreditTransaction) IsConsistent() bool {
	return t.Amount == t.FreeAmount+t.PaidAmount
}
