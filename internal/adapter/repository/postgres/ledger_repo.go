package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	db         *DB
	sqlBuilder sq.StatementBuilderType
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(db *DB) domain.LedgerRepository {
	return &ledgerRepository{
		db:         db,
		sqlBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetPortfolio retrieves the portfolio of a user for one asset class.
// The aggregate row and the holdings are read from one snapshot so a
// concurrent Apply is seen entirely or not at all.
func (r *ledgerRepository) GetPortfolio(ctx context.Context, userID string, class domain.AssetClass) (*domain.Portfolio, error) {
	dbTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	portfolio, err := r.loadPortfolio(ctx, dbTx, userID, class)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return portfolio, nil
}

// ListTransactions retrieves the transaction log, most recent trade first
func (r *ledgerRepository) ListTransactions(ctx context.Context, userID string, class domain.AssetClass) ([]*domain.Transaction, error) {
	query, args, err := r.sqlBuilder.
		Select("id", "symbol", "name", "quantity", "price", "action", "occurred_at", "recorded_at").
		From("ledger_transactions").
		Where(sq.Eq{"user_id": userID, "asset_class": string(class)}).
		OrderBy("occurred_at DESC", "recorded_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListTransactions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec ListTransactions query: %w", err)
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx := &domain.Transaction{UserID: userID, Class: class}
		var quantityStr, priceStr, action string

		if err := rows.Scan(&tx.ID, &tx.Symbol, &tx.Name, &quantityStr, &priceStr, &action, &tx.OccurredAt, &tx.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.Quantity, err = decimal.NewFromString(quantityStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse quantity: %w", err)
		}
		tx.Price, err = decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
		tx.Action = domain.Action(action)

		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	domain.SortTransactions(transactions)
	return transactions, nil
}

// Apply commits a ledger mutation atomically.
// Logic:
// 1. Ensure the portfolio row exists and lock it for the rest of the transaction
// 2. Read the stored holding and compare it with mutation.Previous
// 3. Delete, update or insert the holding
// 4. Add the cost and closed cash flow deltas to the portfolio row
// 5. Append the transaction
// 6. Reload the portfolio and commit
func (r *ledgerRepository) Apply(ctx context.Context, mutation *domain.LedgerMutation) (*domain.Portfolio, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := r.ensurePortfolio(ctx, dbTx, mutation.UserID, mutation.Class); err != nil {
		return nil, err
	}

	current, found, err := r.getHolding(ctx, dbTx, mutation.UserID, mutation.Class, mutation.Symbol)
	if err != nil {
		return nil, err
	}
	if !mutation.Matches(current, found) {
		return nil, fmt.Errorf("%w: %s holding changed", domain.ErrConcurrentUpdate, mutation.Symbol)
	}

	if err := r.writeHolding(ctx, dbTx, mutation, found); err != nil {
		return nil, err
	}

	query, args, err := r.sqlBuilder.
		Update("portfolios").
		Set("aggregate_cost", sq.Expr("aggregate_cost + ?", mutation.CostDelta.String())).
		Set("closed_cash_flow", sq.Expr("closed_cash_flow + ?", mutation.ClosedDelta.String())).
		Where(sq.Eq{"user_id": mutation.UserID, "asset_class": string(mutation.Class)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build UpdateAggregates query: %w", err)
	}
	if _, err := dbTx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("exec UpdateAggregates query: %w", err)
	}

	if err := r.insertTransaction(ctx, dbTx, mutation.Transaction); err != nil {
		return nil, err
	}

	portfolio, err := r.loadPortfolio(ctx, dbTx, mutation.UserID, mutation.Class)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return portfolio, nil
}

func (r *ledgerRepository) ensurePortfolio(ctx context.Context, q queryer, userID string, class domain.AssetClass) error {
	query, args, err := r.sqlBuilder.
		Insert("portfolios").
		Columns("user_id", "asset_class", "aggregate_cost", "closed_cash_flow").
		Values(userID, string(class), "0", "0").
		Suffix("ON CONFLICT (user_id, asset_class) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build EnsurePortfolio query: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec EnsurePortfolio query: %w", err)
	}

	// Row lock serializes concurrent mutations of the same portfolio
	query, args, err = r.sqlBuilder.
		Select("1").
		From("portfolios").
		Where(sq.Eq{"user_id": userID, "asset_class": string(class)}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build LockPortfolio query: %w", err)
	}
	var one int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		return fmt.Errorf("exec LockPortfolio query: %w", err)
	}
	return nil
}

func (r *ledgerRepository) getHolding(ctx context.Context, q queryer, userID string, class domain.AssetClass, symbol string) (domain.Holding, bool, error) {
	query, args, err := r.sqlBuilder.
		Select("quantity", "cost_basis").
		From("holdings").
		Where(sq.Eq{"user_id": userID, "asset_class": string(class), "symbol": symbol}).
		ToSql()
	if err != nil {
		return domain.Holding{}, false, fmt.Errorf("build GetHolding query: %w", err)
	}

	var quantityStr, costBasisStr string
	err = q.QueryRowContext(ctx, query, args...).Scan(&quantityStr, &costBasisStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Holding{}, false, nil
		}
		return domain.Holding{}, false, fmt.Errorf("failed to get holding: %w", err)
	}

	h := domain.Holding{Class: class, Symbol: symbol}
	h.Quantity, err = decimal.NewFromString(quantityStr)
	if err != nil {
		return domain.Holding{}, false, fmt.Errorf("failed to parse quantity: %w", err)
	}
	h.CostBasis, err = decimal.NewFromString(costBasisStr)
	if err != nil {
		return domain.Holding{}, false, fmt.Errorf("failed to parse cost basis: %w", err)
	}
	return h, true, nil
}

func (r *ledgerRepository) writeHolding(ctx context.Context, q queryer, mutation *domain.LedgerMutation, found bool) error {
	key := sq.Eq{"user_id": mutation.UserID, "asset_class": string(mutation.Class), "symbol": mutation.Symbol}

	var (
		query string
		args  []any
		err   error
	)
	switch {
	case mutation.Removes():
		query, args, err = r.sqlBuilder.Delete("holdings").Where(key).ToSql()
	case found:
		query, args, err = r.sqlBuilder.
			Update("holdings").
			Set("name", mutation.Next.Name).
			Set("external_id", mutation.Next.ExternalID).
			Set("quantity", mutation.Next.Quantity.String()).
			Set("cost_basis", mutation.Next.CostBasis.String()).
			Where(key).
			ToSql()
	default:
		query, args, err = r.sqlBuilder.
			Insert("holdings").
			Columns("user_id", "asset_class", "symbol", "name", "external_id", "quantity", "cost_basis").
			Values(mutation.UserID, string(mutation.Class), mutation.Symbol, mutation.Next.Name,
				mutation.Next.ExternalID, mutation.Next.Quantity.String(), mutation.Next.CostBasis.String()).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build WriteHolding query: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec WriteHolding query: %w", err)
	}
	return nil
}

func (r *ledgerRepository) insertTransaction(ctx context.Context, q queryer, tx *domain.Transaction) error {
	id := tx.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query, args, err := r.sqlBuilder.
		Insert("ledger_transactions").
		Columns("id", "user_id", "asset_class", "symbol", "name", "quantity", "price", "action", "occurred_at", "recorded_at").
		Values(id, tx.UserID, string(tx.Class), tx.Symbol, tx.Name, tx.Quantity.String(), tx.Price.String(),
			string(tx.Action), tx.OccurredAt, tx.RecordedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build InsertTransaction query: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec InsertTransaction query: %w", err)
	}
	return nil
}

func (r *ledgerRepository) loadPortfolio(ctx context.Context, q queryer, userID string, class domain.AssetClass) (*domain.Portfolio, error) {
	portfolio := domain.NewPortfolio(userID, class)

	query, args, err := r.sqlBuilder.
		Select("aggregate_cost", "closed_cash_flow").
		From("portfolios").
		Where(sq.Eq{"user_id": userID, "asset_class": string(class)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetPortfolio query: %w", err)
	}

	var aggregateStr, closedStr string
	err = q.QueryRowContext(ctx, query, args...).Scan(&aggregateStr, &closedStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return portfolio, nil
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	portfolio.AggregateCost, err = decimal.NewFromString(aggregateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregate cost: %w", err)
	}
	portfolio.ClosedCashFlow, err = decimal.NewFromString(closedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse closed cash flow: %w", err)
	}

	query, args, err = r.sqlBuilder.
		Select("symbol", "name", "external_id", "quantity", "cost_basis").
		From("holdings").
		Where(sq.Eq{"user_id": userID, "asset_class": string(class)}).
		OrderBy("symbol").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListHoldings query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec ListHoldings query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		h := domain.Holding{Class: class}
		var quantityStr, costBasisStr string

		if err := rows.Scan(&h.Symbol, &h.Name, &h.ExternalID, &quantityStr, &costBasisStr); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}

		h.Quantity, err = decimal.NewFromString(quantityStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse quantity: %w", err)
		}
		h.CostBasis, err = decimal.NewFromString(costBasisStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cost basis: %w", err)
		}

		// ORDER BY uses the database collation; Put keeps byte order
		portfolio.Put(h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return portfolio, nil
}
