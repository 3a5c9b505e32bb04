package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/alphafolio-backend/internal/domain"
	"github.com/simaogato/alphafolio-backend/pkg/log"
)

// BuyInput represents the input for recording a purchase
type BuyInput struct {
	Class      domain.AssetClass
	Symbol     string
	Name       string // Optional: defaults to the symbol
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	OccurredAt time.Time // Optional: defaults to now
	ExternalID string    // Price feed id, required on the first crypto buy
}

// SellInput represents the input for recording a sale
type SellInput struct {
	Class      domain.AssetClass
	Symbol     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	SellingAll bool      // Caller's claim; checked against the ledger
	OccurredAt time.Time // Optional: defaults to now
}

// LedgerService records buys and sells against a user's holdings
type LedgerService struct {
	Repo   domain.LedgerRepository
	Policy domain.CostBasisPolicy
	Now    func() time.Time

	locks *keyedMutex
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(repo domain.LedgerRepository, policy domain.CostBasisPolicy) *LedgerService {
	if policy == "" {
		policy = domain.CostBasisNetCashFlow
	}
	return &LedgerService{
		Repo:   repo,
		Policy: policy,
		Now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

// Buy adds quantity to a holding, creating it if needed
// Logic:
//  1. Validate input
//  2. Lock the (user, class) ledger and read the current holding
//  3. quantity += q, costBasis += price*q, aggregateCost += price*q
//  4. Apply holding change and BUY transaction as one mutation
func (s *LedgerService) Buy(ctx context.Context, userID string, input BuyInput) (*domain.Portfolio, error) {
	// Validate input
	symbol := domain.NormalizeSymbol(input.Symbol)
	if err := validateTrade(userID, input.Class, symbol, input.Quantity, input.Price); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, userID, input.Class)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 2. Read current holding
	portfolio, err := s.Repo.GetPortfolio(ctx, userID, input.Class)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	notional := input.Price.Mul(input.Quantity)
	current, found := portfolio.Find(symbol)

	// 3. Compute next holding
	var next domain.Holding
	if found {
		next = current
		next.Quantity = current.Quantity.Add(input.Quantity)
		next.CostBasis = current.CostBasis.Add(notional)
		if next.ExternalID == "" {
			next.ExternalID = input.ExternalID
		}
	} else {
		if input.Class == domain.AssetClassCrypto && strings.TrimSpace(input.ExternalID) == "" {
			return nil, fmt.Errorf("%w: crypto purchase requires an external id", domain.ErrInvalidInput)
		}
		next = domain.Holding{
			Class:      input.Class,
			Symbol:     symbol,
			Name:       input.Name,
			ExternalID: strings.TrimSpace(input.ExternalID),
			Quantity:   input.Quantity,
			CostBasis:  notional,
		}
		if next.Name == "" {
			next.Name = symbol
		}
	}

	mutation := &domain.LedgerMutation{
		UserID:      userID,
		Class:       input.Class,
		Symbol:      symbol,
		Next:        &next,
		CostDelta:   notional,
		ClosedDelta: decimal.Zero,
		Transaction: s.newTransaction(userID, input.Class, symbol, next.Name, input.Quantity, input.Price, domain.ActionBuy, input.OccurredAt),
	}
	if found {
		mutation.Previous = &current
	}

	// 4. Apply
	return s.apply(ctx, mutation)
}

// Sell removes quantity from a holding
// Logic:
//  1. Validate input and look up the holding
//  2. Sell-all is derived from the ledger: q == holding.quantity
//  3. Sell-all removes the holding; partial sells reduce quantity and cost per Policy
//  4. Apply holding change and SELL transaction as one mutation
func (s *LedgerService) Sell(ctx context.Context, userID string, input SellInput) (*domain.Portfolio, error) {
	// Validate input
	symbol := domain.NormalizeSymbol(input.Symbol)
	if err := validateTrade(userID, input.Class, symbol, input.Quantity, input.Price); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, userID, input.Class)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 1. Look up the holding
	portfolio, err := s.Repo.GetPortfolio(ctx, userID, input.Class)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	current, found := portfolio.Find(symbol)
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, symbol)
	}

	if input.Quantity.GreaterThan(current.Quantity) {
		return nil, fmt.Errorf("%w: selling %s of %s, holding %s",
			domain.ErrInsufficientQuantity, input.Quantity, symbol, current.Quantity)
	}

	// 2. Derive sell-all
	sellingAll := input.Quantity.Equal(current.Quantity)
	if input.SellingAll && !sellingAll {
		return nil, fmt.Errorf("%w: sell-all of %s must sell the full quantity %s",
			domain.ErrInvalidInput, symbol, current.Quantity)
	}

	// 3. Compute cost changes
	proceeds := input.Price.Mul(input.Quantity)
	mutation := &domain.LedgerMutation{
		UserID:      userID,
		Class:       input.Class,
		Symbol:      symbol,
		Previous:    &current,
		ClosedDelta: decimal.Zero,
		Transaction: s.newTransaction(userID, input.Class, symbol, current.Name, input.Quantity, input.Price, domain.ActionSell, input.OccurredAt),
	}

	switch {
	case sellingAll && s.Policy == domain.CostBasisAverage:
		mutation.CostDelta = current.CostBasis.Neg()
	case sellingAll:
		// Net cash flow: the aggregate drops by the proceeds and the
		// holding's leftover basis moves to the closed cash flow
		mutation.CostDelta = proceeds.Neg()
		mutation.ClosedDelta = current.CostBasis.Sub(proceeds)
	default:
		next := current
		next.Quantity = current.Quantity.Sub(input.Quantity)
		reduction := proceeds
		if s.Policy == domain.CostBasisAverage {
			reduction = current.CostBasis.Mul(input.Quantity).Div(current.Quantity)
		}
		next.CostBasis = current.CostBasis.Sub(reduction)
		mutation.Next = &next
		mutation.CostDelta = reduction.Neg()
	}

	// 4. Apply
	return s.apply(ctx, mutation)
}

// GetPortfolio returns the user's holdings for one asset class
func (s *LedgerService) GetPortfolio(ctx context.Context, userID string, class domain.AssetClass) (*domain.Portfolio, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID cannot be empty", domain.ErrInvalidInput)
	}
	if err := class.Validate(); err != nil {
		return nil, err
	}
	return s.Repo.GetPortfolio(ctx, userID, class)
}

// GetTransactions returns the user's transaction log for one asset class,
// most recent first
func (s *LedgerService) GetTransactions(ctx context.Context, userID string, class domain.AssetClass) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID cannot be empty", domain.ErrInvalidInput)
	}
	if err := class.Validate(); err != nil {
		return nil, err
	}
	return s.Repo.ListTransactions(ctx, userID, class)
}

func (s *LedgerService) apply(ctx context.Context, mutation *domain.LedgerMutation) (*domain.Portfolio, error) {
	if err := mutation.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	portfolio, err := s.Repo.Apply(ctx, mutation)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			log.Warnf("ledger conflict for user %s %s %s", mutation.UserID, mutation.Class, mutation.Symbol)
		}
		return nil, err
	}

	log.Debugf("ledger %s %s %s %s@%s for user %s", mutation.Transaction.Action, mutation.Class,
		mutation.Symbol, mutation.Transaction.Quantity, mutation.Transaction.Price, mutation.UserID)
	return portfolio, nil
}

func (s *LedgerService) newTransaction(
	userID string,
	class domain.AssetClass,
	symbol, name string,
	quantity, price decimal.Decimal,
	action domain.Action,
	occurredAt time.Time,
) *domain.Transaction {
	now := s.Now()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return &domain.Transaction{
		ID:         uuid.New(),
		UserID:     userID,
		Class:      class,
		Symbol:     symbol,
		Name:       name,
		Quantity:   quantity,
		Price:      price,
		Action:     action,
		OccurredAt: occurredAt,
		RecordedAt: now,
	}
}

func validateTrade(userID string, class domain.AssetClass, symbol string, quantity, price decimal.Decimal) error {
	if userID == "" {
		return fmt.Errorf("%w: user ID cannot be empty", domain.ErrInvalidInput)
	}
	if err := class.Validate(); err != nil {
		return err
	}
	if symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", domain.ErrInvalidInput)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	if price.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: price cannot be negative", domain.ErrInvalidInput)
	}
	return nil
}
