package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// LedgerMutation is the unit of work a LedgerRepository applies atomically:
// the holding change, the aggregate deltas and the transaction append either
// all commit or none do.
type LedgerMutation struct {
	UserID string
	Class  AssetClass
	Symbol string

	// Previous is the holding state the mutation was computed from (nil when
	// opening a new position). Repositories reject the mutation with
	// ErrConcurrentUpdate if the stored holding differs.
	Previous *Holding

	// Next is the holding after the mutation (nil when the holding is removed)
	Next *Holding

	CostDelta   decimal.Decimal // Added to Portfolio.AggregateCost
	ClosedDelta decimal.Decimal // Added to Portfolio.ClosedCashFlow

	Transaction *Transaction
}

// Removes reports whether the mutation deletes the holding
func (m *LedgerMutation) Removes() bool {
	return m.Next == nil
}

// Validate ensures the mutation is internally consistent
func (m *LedgerMutation) Validate() error {
	if m.UserID == "" {
		return errors.New("mutation user ID cannot be empty")
	}

	if err := m.Class.Validate(); err != nil {
		return err
	}

	if m.Previous == nil && m.Next == nil {
		return errors.New("mutation must have a previous or next holding")
	}

	if m.Next != nil {
		if m.Next.Symbol != m.Symbol || m.Next.Class != m.Class {
			return errors.New("mutation next holding does not match symbol")
		}
		if m.Next.Quantity.LessThanOrEqual(decimal.Zero) {
			return errors.New("mutation must remove holdings instead of storing zero quantity")
		}
	}

	if m.Transaction == nil {
		return errors.New("mutation must carry a transaction")
	}

	return m.Transaction.Validate()
}

// ApplyTo applies the mutation to a copy of p and returns it. It does not
// check the Previous guard; repositories do that under their own lock.
func (m *LedgerMutation) ApplyTo(p *Portfolio) *Portfolio {
	next := p.Clone()
	if m.Next == nil {
		next.Remove(m.Symbol)
	} else {
		next.Put(*m.Next)
	}
	next.AggregateCost = next.AggregateCost.Add(m.CostDelta)
	next.ClosedCashFlow = next.ClosedCashFlow.Add(m.ClosedDelta)
	return next
}

// Matches reports whether the stored holding (found or not) is the one the
// mutation was computed from
func (m *LedgerMutation) Matches(current Holding, found bool) bool {
	if m.Previous == nil {
		return !found
	}
	return found &&
		current.Quantity.Equal(m.Previous.Quantity) &&
		current.CostBasis.Equal(m.Previous.CostBasis)
}
