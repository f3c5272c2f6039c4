package credits

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ArtFox/app/models"
)

const saveBatchSize = 200

// RelationalBackend keeps the ledger in the normalized credit_balances and
// credit_transactions tables. It remembers what it last loaded or saved and
// only writes rows that changed since.
type RelationalBackend struct {
	db *gorm.DB

	mu       sync.Mutex
	balances map[string]models.CreditBalance
	lastSeq  int64
}

// NewRelationalBackend creates the normalized backend.
func NewRelationalBackend(db *gorm.DB) *RelationalBackend {
	return &RelationalBackend{db: db, balances: make(map[string]models.CreditBalance)}
}

func (b *RelationalBackend) Name() string {
	return "db:credit_tables"
}

func (b *RelationalBackend) Load(ctx context.Context) (Document, bool, error) {
	var balances []models.CreditBalance
	if err := b.db.WithContext(ctx).Order("user_id ASC").Find(&balances).Error; err != nil {
		return Document{}, false, fmt.Errorf("failed to load credit balances: %w", err)
	}
	var txs []models.CreditTransaction
	if err := b.db.WithContext(ctx).Order("seq ASC").Find(&txs).Error; err != nil {
		return Document{}, false, fmt.Errorf("failed to load credit transactions: %w", err)
	}
	if len(balances) == 0 && len(txs) == 0 {
		return Document{}, false, nil
	}

	doc := Document{
		Version:      DocumentVersion,
		Balances:     filterRows(balances, checkBalance),
		Transactions: filterRows(txs, checkTransaction),
	}
	if dropped := len(balances) + len(txs) - len(doc.Balances) - len(doc.Transactions); dropped > 0 {
		log.Warnf("[Credits] Dropped %d malformed rows from credit tables", dropped)
	}
	b.markSaved(balances, txs)
	return doc, true, nil
}

// Save upserts balances that changed and inserts transactions past the last
// stored sequence. Transactions are immutable, so existing rows are left
// untouched.
func (b *RelationalBackend) Save(ctx context.Context, doc Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	balances, txs := pendingRows(b.balances, b.lastSeq, doc)
	if len(balances) == 0 && len(txs) == 0 {
		return nil
	}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(balances) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"free_remaining", "paid_remaining", "total_used", "updated_at"}),
			}).CreateInBatches(balances, saveBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save credit balances: %w", err)
			}
		}
		if len(txs) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(txs, saveBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save credit transactions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.markSavedLocked(balances, txs)
	return nil
}

func (b *RelationalBackend) markSaved(balances []models.CreditBalance, txs []models.CreditTransaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markSavedLocked(balances, txs)
}

func (b *RelationalBackend) markSavedLocked(balances []models.CreditBalance, txs []models.CreditTransaction) {
	for _, bal := range balances {
		b.balances[bal.UserID] = bal
	}
	for _, tx := range txs {
		if tx.Seq > b.lastSeq {
			b.lastSeq = tx.Seq
		}
	}
}

// pendingRows returns the balances that differ from the stored copy and the
// transactions with a sequence above lastSeq.
func pendingRows(stored map[string]models.CreditBalance, lastSeq int64, doc Document) ([]models.CreditBalance, []models.CreditTransaction) {
	var balances []models.CreditBalance
	for _, bal := range doc.Balances {
		if prev, ok := stored[bal.UserID]; ok && sameBalance(prev, bal) {
			continue
		}
		balances = append(balances, bal)
	}
	var txs []models.CreditTransaction
	for _, tx := range doc.Transactions {
		if tx.Seq > lastSeq {
			txs = append(txs, tx)
		}
	}
	return balances, txs
}

func sameBalance(a, b models.CreditBalance) bool {
	return a.FreeRemaining == b.FreeRemaining &&
		a.PaidRemaining == b.PaidRemaining &&
		a.TotalUsed == b.TotalUsed &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

func filterRows[T any](rows []T, check func(T) error) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if check(row) == nil {
			out = append(out, row)
		}
	}
	return out
}
