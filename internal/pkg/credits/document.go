package credits

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/statestore"
)

// DocumentVersion is the snapshot format version written by this package.
const DocumentVersion = 1

// StoreName identifies the credit store in logs, file names and blob keys.
const StoreName = "credits"

// Document is the persisted snapshot of the ledger.
type Document struct {
	Version      int                        `json:"version"`
	Balances     []models.CreditBalance     `json:"balances"`
	Transactions []models.CreditTransaction `json:"transactions"`
}

// EmptyDocument is the hydration fallback.
func EmptyDocument() Document {
	return Document{
		Version:      DocumentVersion,
		Balances:     []models.CreditBalance{},
		Transactions: []models.CreditTransaction{},
	}
}

type rawDocument struct {
	Version      int               `json:"version"`
	Balances     []json.RawMessage `json:"balances"`
	Transactions []json.RawMessage `json:"transactions"`
}

// Codec encodes ledger snapshots and decodes them record by record.
var Codec = statestore.Codec[Document]{
	Encode: func(doc Document) ([]byte, error) {
		return json.MarshalIndent(doc, "", "  ")
	},
	Decode: DecodeDocument,
}

// DecodeDocument parses a snapshot, dropping malformed balances and
// transactions individually.
func DecodeDocument(data []byte) (Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("invalid credit snapshot: %w", err)
	}

	balances, droppedBalances := statestore.DecodeRecords(raw.Balances, checkBalance)
	txs, droppedTxs := statestore.DecodeRecords(raw.Transactions, checkTransaction)
	if droppedBalances > 0 || droppedTxs > 0 {
		log.Warnf("[Credits] Dropped %d malformed balances and %d malformed transactions during hydration", droppedBalances, droppedTxs)
	}

	version := raw.Version
	if version == 0 {
		version = DocumentVersion
	}
	return Document{Version: version, Balances: balances, Transactions: txs}, nil
}

func checkBalance(b models.CreditBalance) error {
	return models.ValidateRecord(b)
}

func checkTransaction(t models.CreditTransaction) error {
	if err := models.ValidateRecord(t); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	if !t.IsConsistent() {
		return fmt.Errorf("transaction %s amount does not match pool deltas", t.ID)
	}
	return nil
}
