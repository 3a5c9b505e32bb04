package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValuedAsset is a holding priced at the latest quote. Derived, never persisted.
type ValuedAsset struct {
	Symbol           string
	Name             string
	Quantity         decimal.Decimal
	Price            decimal.Decimal
	Value            decimal.Decimal // Quantity * Price
	CostBasis        decimal.Decimal
	DayChangePercent decimal.Decimal
	ROIPercent       decimal.NullDecimal // Invalid when CostBasis is not positive
}

// FailureReason classifies why a symbol was dropped from a result
type FailureReason string

const (
	FailureTimeout     FailureReason = "TIMEOUT"
	FailureNotFound    FailureReason = "NOT_FOUND"
	FailureUnavailable FailureReason = "UNAVAILABLE"
)

// SymbolFailure identifies a symbol the price feed could not serve
type SymbolFailure struct {
	Symbol  string
	Reason  FailureReason
	Message string
}

// ValuationResult is the priced view of one asset class portfolio
type ValuationResult struct {
	Class      AssetClass
	Assets     []ValuedAsset // Sorted by symbol
	TotalValue decimal.Decimal
	TotalCost  decimal.Decimal
	TotalROI   decimal.NullDecimal
	Failures   []SymbolFailure // Symbols omitted from Assets
}

// Partial reports whether some symbols were dropped
func (r *ValuationResult) Partial() bool {
	return len(r.Failures) > 0
}

// Err wraps ErrPartialUpstreamFailure when some symbols were dropped
func (r *ValuationResult) Err() error {
	if !r.Partial() {
		return nil
	}
	return partialFailure(r.Failures)
}

// AssetSeries is the price history of one holding, ready for merging
type AssetSeries struct {
	Symbol   string
	Class    AssetClass
	Quantity decimal.Decimal
	Points   []PricePoint
}

// ValuePoint is one bucket of the combined portfolio value curve
type ValuePoint struct {
	Timestamp  time.Time
	TotalValue decimal.Decimal
}

// MergeResult is the combined value curve across asset classes
type MergeResult struct {
	Period   Period
	Points   []ValuePoint // Strictly increasing timestamps
	Failures []SymbolFailure
}

// Partial reports whether some series were dropped from the curve
func (r *MergeResult) Partial() bool {
	return len(r.Failures) > 0
}

// Err wraps ErrPartialUpstreamFailure when some series were dropped
func (r *MergeResult) Err() error {
	if !r.Partial() {
		return nil
	}
	return partialFailure(r.Failures)
}

func partialFailure(failures []SymbolFailure) error {
	symbols := make([]string, len(failures))
	for i, f := range failures {
		symbols[i] = f.Symbol
	}
	return fmt.Errorf("%w: %d symbols dropped %v", ErrPartialUpstreamFailure, len(failures), symbols)
}

// ROIPercent returns (value - cost) / cost * 100. The result is invalid when
// cost is zero or negative: a net cash flow basis goes negative once sales
// return more than was paid in.
func ROIPercent(value, cost decimal.Decimal) decimal.NullDecimal {
	if !cost.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value.Sub(cost).Div(cost).Mul(hundred))
}
