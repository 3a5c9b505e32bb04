package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/alphafolio-backend/internal/domain"
	"github.com/simaogato/alphafolio-backend/internal/usecase/merger"
	"github.com/simaogato/alphafolio-backend/pkg/log"
)

const (
	DefaultMaxConcurrency = 8
	DefaultCallTimeout    = 5 * time.Second
)

// Feed call names reported to Metrics
const (
	OpQuote   = "quote"
	OpHistory = "history"
)

// Metrics receives one observation per price feed call.
// failure is empty when the call succeeded.
type Metrics interface {
	RecordFeedCall(op string, class domain.AssetClass, failure domain.FailureReason, elapsed time.Duration)
}

// ValuationService prices ledger holdings and builds value curves
type ValuationService struct {
	LedgerRepo domain.LedgerRepository
	Feed       domain.PriceFeed
	Calendar   *domain.SessionCalendar
	Metrics    Metrics // Optional

	MaxConcurrency int
	CallTimeout    time.Duration
}

// NewValuationService creates a new ValuationService instance
func NewValuationService(ledgerRepo domain.LedgerRepository, feed domain.PriceFeed, calendar *domain.SessionCalendar) *ValuationService {
	return &ValuationService{
		LedgerRepo:     ledgerRepo,
		Feed:           feed,
		Calendar:       calendar,
		MaxConcurrency: DefaultMaxConcurrency,
		CallTimeout:    DefaultCallTimeout,
	}
}

// Valuate prices the user's holdings of one asset class
func (s *ValuationService) Valuate(ctx context.Context, userID string, class domain.AssetClass) (*domain.ValuationResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID cannot be empty", domain.ErrInvalidInput)
	}
	if err := class.Validate(); err != nil {
		return nil, err
	}

	portfolio, err := s.LedgerRepo.GetPortfolio(ctx, userID, class)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	return s.ValuatePortfolio(ctx, portfolio)
}

// ValuatePortfolio prices a portfolio snapshot
// Logic:
//  1. Zero holdings: empty result, no feed calls
//  2. One quote per distinct lookup key, fetched concurrently
//  3. value = quantity * price, ROI against the holding's cost basis
//  4. Failed symbols are dropped and listed in Failures. All failing is an
//     error only when the feed was down; unknown symbols alone give an empty result
//  5. TotalCost is the portfolio's aggregate cost
func (s *ValuationService) ValuatePortfolio(ctx context.Context, portfolio *domain.Portfolio) (*domain.ValuationResult, error) {
	result := &domain.ValuationResult{
		Class:      portfolio.Class,
		Assets:     []domain.ValuedAsset{},
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
		Failures:   []domain.SymbolFailure{},
	}

	// 1. Nothing to price
	if portfolio.IsEmpty() {
		return result, nil
	}

	// 2. Fetch quotes
	keys := make([]string, 0, len(portfolio.Holdings))
	keyIndex := make(map[string]int, len(portfolio.Holdings))
	for _, h := range portfolio.Holdings {
		key := h.LookupKey()
		if _, ok := keyIndex[key]; !ok {
			keyIndex[key] = len(keys)
			keys = append(keys, key)
		}
	}

	quotes := fanOut(ctx, keys, s.concurrency(), s.timeout(), func(ctx context.Context, key string) (domain.Quote, error) {
		start := time.Now()
		q, err := s.Feed.GetQuote(ctx, portfolio.Class, key)
		s.record(OpQuote, portfolio.Class, err, time.Since(start))
		return q, err
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Value each holding; holdings are sorted by symbol
	for _, h := range portfolio.Holdings {
		q := quotes[keyIndex[h.LookupKey()]]
		if q.err != nil {
			result.Failures = append(result.Failures, failure(h.Symbol, q.err))
			log.Warnf("valuation dropped %s %s: %v", portfolio.Class, h.Symbol, q.err)
			continue
		}

		value := h.Quantity.Mul(q.value.Price)
		result.Assets = append(result.Assets, domain.ValuedAsset{
			Symbol:           h.Symbol,
			Name:             h.Name,
			Quantity:         h.Quantity,
			Price:            q.value.Price,
			Value:            value,
			CostBasis:        h.CostBasis,
			DayChangePercent: q.value.DayChangePercent,
			ROIPercent:       domain.ROIPercent(value, h.CostBasis),
		})
		result.TotalValue = result.TotalValue.Add(value)
	}

	// 4. Every symbol failed
	if len(result.Assets) == 0 && feedDown(result.Failures) {
		return nil, fmt.Errorf("%w: no %s symbol could be priced", domain.ErrUpstreamUnavailable, portfolio.Class)
	}

	// 5. Totals
	result.TotalCost = portfolio.AggregateCost
	if len(result.Assets) > 0 {
		result.TotalROI = domain.ROIPercent(result.TotalValue, result.TotalCost)
	}

	if err := result.Err(); err != nil {
		log.Infof("valuation of %s is partial: %v", portfolio.Class, err)
	}
	return result, nil
}

// GetCombinedValueCurve merges the price history of every holding, across
// both asset classes, into one value curve
func (s *ValuationService) GetCombinedValueCurve(ctx context.Context, userID string, period domain.Period) (*domain.MergeResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID cannot be empty", domain.ErrInvalidInput)
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var holdings []domain.Holding
	for _, class := range domain.AssetClasses() {
		portfolio, err := s.LedgerRepo.GetPortfolio(ctx, userID, class)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s portfolio: %w", class, err)
		}
		holdings = append(holdings, portfolio.Holdings...)
	}

	result := &domain.MergeResult{
		Period:   period,
		Points:   []domain.ValuePoint{},
		Failures: []domain.SymbolFailure{},
	}
	if len(holdings) == 0 {
		return result, nil
	}

	histories := fanOut(ctx, holdings, s.concurrency(), s.timeout(), func(ctx context.Context, h domain.Holding) ([]domain.PricePoint, error) {
		start := time.Now()
		points, err := s.Feed.GetHistory(ctx, h.Class, h.LookupKey(), period)
		s.record(OpHistory, h.Class, err, time.Since(start))
		return points, err
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := make(map[string]domain.AssetSeries, len(holdings))
	for i, h := range holdings {
		history := histories[i]
		if history.err != nil {
			result.Failures = append(result.Failures, failure(h.Symbol, history.err))
			log.Warnf("value curve dropped %s %s: %v", h.Class, h.Symbol, history.err)
			continue
		}
		series[string(h.Class)+":"+h.Symbol] = domain.AssetSeries{
			Symbol:   h.Symbol,
			Class:    h.Class,
			Quantity: h.Quantity,
			Points:   history.value,
		}
	}

	if len(series) == 0 {
		if feedDown(result.Failures) {
			return nil, fmt.Errorf("%w: no price history could be fetched", domain.ErrUpstreamUnavailable)
		}
		return result, nil
	}

	result.Points = merger.Merge(series, s.Calendar, period)
	if err := result.Err(); err != nil {
		log.Infof("value curve for %s is partial: %v", period, err)
	}
	return result, nil
}

func (s *ValuationService) concurrency() int {
	if s.MaxConcurrency <= 0 {
		return DefaultMaxConcurrency
	}
	return s.MaxConcurrency
}

func (s *ValuationService) timeout() time.Duration {
	if s.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return s.CallTimeout
}

func (s *ValuationService) record(op string, class domain.AssetClass, err error, elapsed time.Duration) {
	if s.Metrics == nil {
		return
	}
	var reason domain.FailureReason
	if err != nil {
		reason = classify(err)
	}
	s.Metrics.RecordFeedCall(op, class, reason, elapsed)
}

// feedDown reports whether any failure was an outage or timeout rather than
// an unknown symbol
func feedDown(failures []domain.SymbolFailure) bool {
	for _, f := range failures {
		if f.Reason != domain.FailureNotFound {
			return true
		}
	}
	return false
}

func failure(symbol string, err error) domain.SymbolFailure {
	return domain.SymbolFailure{Symbol: symbol, Reason: classify(err), Message: err.Error()}
}
