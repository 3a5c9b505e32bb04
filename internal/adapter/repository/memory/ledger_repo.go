package memory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

type cellKey struct {
	userID string
	class  domain.AssetClass
}

// ledgerState is an immutable snapshot of one (user, class) ledger
type ledgerState struct {
	portfolio    *domain.Portfolio
	transactions []*domain.Transaction // Append order
}

// ledgerCell holds the current snapshot. Readers load it without locking;
// writers serialize on mu and publish a new snapshot.
type ledgerCell struct {
	mu    sync.Mutex
	state atomic.Pointer[ledgerState]
}

// ledgerRepository implements domain.LedgerRepository in memory
type ledgerRepository struct {
	cells sync.Map // cellKey -> *ledgerCell
}

// NewLedgerRepository creates a new in-memory ledger repository
func NewLedgerRepository() domain.LedgerRepository {
	return &ledgerRepository{}
}

func (r *ledgerRepository) cell(userID string, class domain.AssetClass) *ledgerCell {
	key := cellKey{userID: userID, class: class}
	if c, ok := r.cells.Load(key); ok {
		return c.(*ledgerCell)
	}

	fresh := &ledgerCell{}
	fresh.state.Store(&ledgerState{portfolio: domain.NewPortfolio(userID, class)})
	c, _ := r.cells.LoadOrStore(key, fresh)
	return c.(*ledgerCell)
}

// GetPortfolio returns a copy of the current portfolio snapshot
func (r *ledgerRepository) GetPortfolio(ctx context.Context, userID string, class domain.AssetClass) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.cell(userID, class).state.Load().portfolio.Clone(), nil
}

// ListTransactions returns the transaction log, most recent first
func (r *ledgerRepository) ListTransactions(ctx context.Context, userID string, class domain.AssetClass) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := r.cell(userID, class).state.Load()
	txs := make([]*domain.Transaction, len(state.transactions))
	for i, tx := range state.transactions {
		copied := *tx
		txs[i] = &copied
	}
	domain.SortTransactions(txs)
	return txs, nil
}

// Apply publishes the next snapshot if the stored holding still matches
// mutation.Previous
func (r *ledgerRepository) Apply(ctx context.Context, mutation *domain.LedgerMutation) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := r.cell(mutation.UserID, mutation.Class)
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.state.Load()
	holding, found := current.portfolio.Find(mutation.Symbol)
	if !mutation.Matches(holding, found) {
		return nil, domain.ErrConcurrentUpdate
	}

	tx := *mutation.Transaction
	next := &ledgerState{
		portfolio:    mutation.ApplyTo(current.portfolio),
		transactions: append(slices.Clip(current.transactions), &tx),
	}
	c.state.Store(next)

	return next.portfolio.Clone(), nil
}
