package domain

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action represents the side of a ledger transaction
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Transaction represents an immutable ledger entry.
// Transactions are never mutated or deleted; they are the audit trail of the ledger.
type Transaction struct {
	ID         uuid.UUID
	UserID     string
	Class      AssetClass
	Symbol     string
	Name       string
	Quantity   decimal.Decimal // Always positive
	Price      decimal.Decimal // Per unit, never negative
	Action     Action
	OccurredAt time.Time // Trade date supplied by the user
	RecordedAt time.Time // When the ledger accepted the mutation
}

// Notional returns price * quantity
func (t *Transaction) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// Validate ensures the transaction adheres to domain rules
func (t *Transaction) Validate() error {
	if err := t.Class.Validate(); err != nil {
		return err
	}

	if t.Symbol == "" {
		return errors.New("transaction symbol cannot be empty")
	}

	if t.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.New("transaction quantity must be positive")
	}

	if t.Price.LessThan(decimal.Zero) {
		return errors.New("transaction price cannot be negative")
	}

	if t.Action != ActionBuy && t.Action != ActionSell {
		return errors.New("transaction action must be BUY or SELL")
	}

	return nil
}

// SortTransactions orders transactions for display: most recent trade date first,
// ties broken by the most recently recorded.
func SortTransactions(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].OccurredAt.Equal(txs[j].OccurredAt) {
			return txs[i].OccurredAt.After(txs[j].OccurredAt)
		}
		return txs[i].RecordedAt.After(txs[j].RecordedAt)
	})
}
