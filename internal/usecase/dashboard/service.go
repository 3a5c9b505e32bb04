package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

// Valuator prices one asset class of a user's ledger
type Valuator interface {
	Valuate(ctx context.Context, userID string, class domain.AssetClass) (*domain.ValuationResult, error)
}

// NetWorthResult represents the calculated net worth
type NetWorthResult struct {
	Total    decimal.Decimal
	Equity   decimal.Decimal
	Crypto   decimal.Decimal
	Cost     decimal.Decimal
	ROI      decimal.NullDecimal
	Failures []domain.SymbolFailure

	// Unavailable lists classes with holdings none of which could be priced.
	// Their value is not part of Total.
	Unavailable []domain.AssetClass
}

// DashboardService handles dashboard-related operations
type DashboardService struct {
	Valuator Valuator
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(valuator Valuator) *DashboardService {
	return &DashboardService{
		Valuator: valuator,
	}
}

// GetNetWorth calculates the total net worth across asset classes
// Logic:
//   - Equity: value of all equity holdings at the latest quotes
//   - Crypto: value of all crypto holdings at the latest quotes
//   - Total: Equity + Crypto
//   - A class whose feed is entirely down is reported in Unavailable;
//     only both classes being down fails the call
func (s *DashboardService) GetNetWorth(ctx context.Context, userID string) (*NetWorthResult, error) {
	classes := domain.AssetClasses()
	results := make([]*domain.ValuationResult, len(classes))
	errs := make([]error, len(classes))

	// 1. Value both classes concurrently
	var g errgroup.Group
	for i, class := range classes {
		g.Go(func() error {
			results[i], errs[i] = s.Valuator.Valuate(ctx, userID, class)
			return nil
		})
	}
	_ = g.Wait()

	// 2. Sum the classes that could be priced
	out := &NetWorthResult{
		Total:       decimal.Zero,
		Equity:      decimal.Zero,
		Crypto:      decimal.Zero,
		Cost:        decimal.Zero,
		Failures:    []domain.SymbolFailure{},
		Unavailable: []domain.AssetClass{},
	}

	for i, class := range classes {
		if err := errs[i]; err != nil {
			if errors.Is(err, domain.ErrUpstreamUnavailable) {
				out.Unavailable = append(out.Unavailable, class)
				continue
			}
			return nil, fmt.Errorf("failed to value %s holdings: %w", class, err)
		}

		r := results[i]
		switch class {
		case domain.AssetClassEquity:
			out.Equity = r.TotalValue
		case domain.AssetClassCrypto:
			out.Crypto = r.TotalValue
		}
		out.Total = out.Total.Add(r.TotalValue)
		out.Cost = out.Cost.Add(r.TotalCost)
		out.Failures = append(out.Failures, r.Failures...)
	}

	if len(out.Unavailable) == len(classes) {
		return nil, fmt.Errorf("%w: no asset class could be priced", domain.ErrUpstreamUnavailable)
	}

	// 3. ROI over the classes included in Total
	out.ROI = domain.ROIPercent(out.Total, out.Cost)

	return out, nil
}
