package domain

import (
	"context"
)

// LedgerRepository defines the interface for ledger persistence operations
type LedgerRepository interface {
	// GetPortfolio retrieves the portfolio of a user for one asset class.
	// A user with no holdings gets an empty portfolio, not an error.
	GetPortfolio(ctx context.Context, userID string, class AssetClass) (*Portfolio, error)

	// ListTransactions retrieves the transaction log of a user for one asset class,
	// ordered by SortTransactions
	ListTransactions(ctx context.Context, userID string, class AssetClass) ([]*Transaction, error)

	// Apply commits the holding change, the aggregate deltas and the transaction
	// append as one atomic step and returns the updated portfolio.
	// Returns ErrConcurrentUpdate when mutation.Previous no longer matches.
	Apply(ctx context.Context, mutation *LedgerMutation) (*Portfolio, error)
}
