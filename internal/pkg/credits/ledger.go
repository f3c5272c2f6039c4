package credits

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ArtFox/app/models"
)

const (
	DefaultFreeCredits        = 3
	DefaultMaxPurchaseCredits = 100
)

// Config holds the ledger limits.
type Config struct {
	FreeCredits        int
	MaxPurchaseCredits int
}

// Persister receives a full snapshot after every mutation.
type Persister interface {
	Persist(doc Document)
}

type purchaseKey struct {
	userID      string
	referenceID string
}

// Ledger is the authoritative in-memory credit state. Every mutation runs
// under one mutex, so the pool check and the deduction can never interleave
// with another request.
type Ledger struct {
	cfg   Config
	store Persister
	now   func() time.Time
	newID func() string

	mu           sync.Mutex
	balances     map[string]*models.CreditBalance
	transactions []models.CreditTransaction
	byUser       map[string][]int
	purchases    map[purchaseKey]int
	lastSeq      int64
}

// NewLedger creates a ledger from a hydrated document. store may be nil.
func NewLedger(cfg Config, store Persister, doc Document) *Ledger {
	if cfg.FreeCredits < 0 {
		cfg.FreeCredits = DefaultFreeCredits
	}
	if cfg.MaxPurchaseCredits <= 0 {
		cfg.MaxPurchaseCredits = DefaultMaxPurchaseCredits
	}

	l := &Ledger{
		cfg:          cfg,
		store:        store,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		balances:     make(map[string]*models.CreditBalance, len(doc.Balances)),
		transactions: make([]models.CreditTransaction, 0, len(doc.Transactions)),
		byUser:       make(map[string][]int),
		purchases:    make(map[purchaseKey]int),
	}
	for _, b := range doc.Balances {
		bal := b
		l.balances[bal.UserID] = &bal
	}
	for _, tx := range doc.Transactions {
		l.indexLocked(tx)
	}
	log.Infof("[Credits] Ledger loaded with %d balances and %d transactions", len(l.balances), len(l.transactions))
	return l
}

// Initialize creates the user's balance with the free grant. It is
// idempotent: an existing balance is returned unchanged.
func (l *Ledger) Initialize(userID string) (models.CreditBalance, error) {
	userID = normalizeUserID(userID)
	if userID == "" {
		return models.CreditBalance{}, ErrInvalidUser
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if bal, ok := l.balances[userID]; ok {
		return *bal, nil
	}
	bal := l.initLocked(userID)
	l.persistLocked()
	return *bal, nil
}

// GetBalance returns the user's balance if it exists.
func (l *Ledger) GetBalance(userID string) (models.CreditBalance, bool) {
	userID = normalizeUserID(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		return models.CreditBalance{}, false
	}
	return *bal, true
}

// CanConsume reports whether the user has at least one credit left. Unknown
// users cannot consume.
func (l *Ledger) CanConsume(userID string) bool {
	userID = normalizeUserID(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	return ok && bal.Remaining() > 0
}

// Consume deducts exactly one credit, free pool first.
func (l *Ledger) Consume(userID, referenceID string) (models.CreditTransaction, error) {
	userID = normalizeUserID(userID)
	referenceID = strings.Clone(referenceID)
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		return models.CreditTransaction{}, ErrNoCreditBalance
	}
	if bal.Remaining() <= 0 {
		return models.CreditTransaction{}, ErrInsufficientCredits
	}

	freeDelta, paidDelta := 0, 0
	if bal.FreeRemaining > 0 {
		bal.FreeRemaining--
		freeDelta = -1
	} else {
		bal.PaidRemaining--
		paidDelta = -1
	}
	bal.TotalUsed++
	bal.UpdatedAt = l.now()

	tx := l.appendLocked(bal, models.CreditTransactionConsume, freeDelta, paidDelta, referenceID, "Artwork generation")
	l.persistLocked()

	log.Infof("[Credits] User %s consumed 1 credit (free=%d paid=%d ref=%s)", userID, bal.FreeRemaining, bal.PaidRemaining, referenceID)
	return tx, nil
}

// AddPurchased credits the paid pool. A repeated call with the same
// referenceID for the same user returns the original transaction and credits
// nothing, which makes payment confirmation retries safe.
func (l *Ledger) AddPurchased(userID string, amount int, referenceID string) (models.CreditTransaction, error) {
	userID = normalizeUserID(userID)
	referenceID = strings.Clone(strings.TrimSpace(referenceID))
	if userID == "" {
		return models.CreditTransaction{}, ErrInvalidUser
	}
	if amount <= 0 || amount > l.cfg.MaxPurchaseCredits {
		return models.CreditTransaction{}, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidCreditAmount, amount, l.cfg.MaxPurchaseCredits)
	}
	if referenceID == "" {
		return models.CreditTransaction{}, ErrInvalidReference
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.purchases[purchaseKey{userID: userID, referenceID: referenceID}]; ok {
		log.Infof("[Credits] Duplicate purchase %s for user %s ignored", referenceID, userID)
		return l.transactions[idx], nil
	}

	bal, ok := l.balances[userID]
	if !ok {
		bal = l.initLocked(userID)
	}
	bal.PaidRemaining += amount
	bal.UpdatedAt = l.now()

	tx := l.appendLocked(bal, models.CreditTransactionPurchase, 0, amount, referenceID, fmt.Sprintf("Purchased %d credits", amount))
	l.persistLocked()

	log.Infof("[Credits] User %s purchased %d credits (ref=%s)", userID, amount, referenceID)
	return tx, nil
}

// ListTransactions returns the user's transactions in chronological order.
func (l *Ledger) ListTransactions(userID string) []models.CreditTransaction {
	userID = normalizeUserID(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	idxs := l.byUser[userID]
	out := make([]models.CreditTransaction, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, l.transactions[idx])
	}
	return out
}

// Audit replays the user's transaction log and compares the result with the
// stored balance.
func (l *Ledger) Audit(userID string) error {
	userID = normalizeUserID(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		return ErrNoCreditBalance
	}

	free, paid, used := 0, 0, 0
	for _, idx := range l.byUser[userID] {
		tx := l.transactions[idx]
		if !tx.IsConsistent() {
			return fmt.Errorf("%w: transaction %s amount %d != %d%+d", ErrLedgerMismatch, tx.ID, tx.Amount, tx.FreeAmount, tx.PaidAmount)
		}
		free += tx.FreeAmount
		paid += tx.PaidAmount
		if tx.Type == models.CreditTransactionConsume {
			used -= tx.Amount
		}
		if free < 0 || paid < 0 {
			return fmt.Errorf("%w: negative pool after transaction %s", ErrLedgerMismatch, tx.ID)
		}
		if tx.BalanceAfterFree != free || tx.BalanceAfterPaid != paid {
			return fmt.Errorf("%w: transaction %s snapshot %d/%d, replay %d/%d", ErrLedgerMismatch, tx.ID, tx.BalanceAfterFree, tx.BalanceAfterPaid, free, paid)
		}
	}

	if bal.FreeRemaining != free || bal.PaidRemaining != paid || bal.TotalUsed != used {
		return fmt.Errorf("%w: balance %d/%d used %d, replay %d/%d used %d", ErrLedgerMismatch,
			bal.FreeRemaining, bal.PaidRemaining, bal.TotalUsed, free, paid, used)
	}
	return nil
}

// Snapshot returns a copy of the full ledger state.
func (l *Ledger) Snapshot() Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) initLocked(userID string) *models.CreditBalance {
	now := l.now()
	bal := &models.CreditBalance{
		UserID:        userID,
		FreeRemaining: l.cfg.FreeCredits,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.balances[userID] = bal
	l.appendLocked(bal, models.CreditTransactionGrantFree, l.cfg.FreeCredits, 0, "signup:"+userID, "Welcome credits")

	log.Infof("[Credits] Initialized user %s with %d free credits", userID, l.cfg.FreeCredits)
	return bal
}

func (l *Ledger) appendLocked(bal *models.CreditBalance, typ models.CreditTransactionType, freeDelta, paidDelta int, referenceID, description string) models.CreditTransaction {
	tx := models.CreditTransaction{
		ID:               l.newID(),
		UserID:           bal.UserID,
		Type:             typ,
		Amount:           freeDelta + paidDelta,
		FreeAmount:       freeDelta,
		PaidAmount:       paidDelta,
		BalanceAfterFree: bal.FreeRemaining,
		BalanceAfterPaid: bal.PaidRemaining,
		ReferenceID:      referenceID,
		Description:      description,
		Timestamp:        l.now(),
	}
	return l.indexLocked(tx)
}

// indexLocked appends tx. Stored sequence numbers are kept as long as they
// increase, so rows already in the transactions table keep their position.
func (l *Ledger) indexLocked(tx models.CreditTransaction) models.CreditTransaction {
	idx := len(l.transactions)
	if tx.Seq <= l.lastSeq {
		tx.Seq = l.lastSeq + 1
	}
	l.lastSeq = tx.Seq
	l.transactions = append(l.transactions, tx)
	l.byUser[tx.UserID] = append(l.byUser[tx.UserID], idx)
	if tx.Type == models.CreditTransactionPurchase && tx.ReferenceID != "" {
		key := purchaseKey{userID: tx.UserID, referenceID: tx.ReferenceID}
		if _, exists := l.purchases[key]; !exists {
			l.purchases[key] = idx
		}
	}
	return tx
}

func (l *Ledger) snapshotLocked() Document {
	doc := Document{
		Version:      DocumentVersion,
		Balances:     make([]models.CreditBalance, 0, len(l.balances)),
		Transactions: append([]models.CreditTransaction(nil), l.transactions...),
	}
	for _, bal := range l.balances {
		doc.Balances = append(doc.Balances, *bal)
	}
	sort.Slice(doc.Balances, func(i, j int) bool {
		return doc.Balances[i].UserID < doc.Balances[j].UserID
	})
	return doc
}

func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	l.store.Persist(l.snapshotLocked())
}

// normalizeUserID trims the id and detaches it from the caller's buffer, since
// it may end up as a map key.
func normalizeUserID(userID string) string {
	return strings.Clone(strings.TrimSpace(userID))
}
