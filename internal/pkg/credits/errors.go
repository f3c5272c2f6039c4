package credits

import "errors"

var (
	// ErrNoCreditBalance means the user has never been initialized.
	ErrNoCreditBalance = errors.New("no credit balance for user")
	// ErrInsufficientCredits means both pools are empty.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidCreditAmount rejects non-positive or oversized purchases.
	ErrInvalidCreditAmount = errors.New("invalid credit amount")
	// ErrInvalidReference rejects a purchase without an idempotency key.
	ErrInvalidReference = errors.New("invalid reference id")
	// ErrInvalidUser rejects an empty user id.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrLedgerMismatch is reported by Audit when the log and balance disagree.
	ErrLedgerMismatch = errors.New("credit ledger mismatch")
)
