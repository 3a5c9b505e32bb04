package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// AssetClass represents the kind of market an asset trades on
type AssetClass string

const (
	AssetClassEquity AssetClass = "EQUITY" // Session-bound (market hours only)
	AssetClassCrypto AssetClass = "CRYPTO" // Traded continuously
)

// AssetClasses lists every supported asset class in a stable order
func AssetClasses() []AssetClass {
	return []AssetClass{AssetClassEquity, AssetClassCrypto}
}

// Validate returns ErrInvalidInput for an unknown asset class
func (c AssetClass) Validate() error {
	switch c {
	case AssetClassEquity, AssetClassCrypto:
		return nil
	default:
		return fmt.Errorf("%w: unknown asset class %q", ErrInvalidInput, string(c))
	}
}

// ParseAssetClass converts user input ("stock", "equity", "crypto", ...) to an AssetClass
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "stock", "stocks":
		return AssetClassEquity, nil
	case "crypto", "cryptocurrency":
		return AssetClassCrypto, nil
	default:
		return "", fmt.Errorf("%w: unknown asset class %q", ErrInvalidInput, s)
	}
}

// NormalizeSymbol returns the canonical form of a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Holding represents one open position in the domain layer
type Holding struct {
	Class      AssetClass
	Symbol     string
	Name       string
	ExternalID string          // Price feed id, crypto only (e.g. CoinGecko "bitcoin")
	Quantity   decimal.Decimal // Always > 0 while the holding exists
	CostBasis  decimal.Decimal // Running net cash invested, see CostBasisPolicy
}

// LookupKey returns the identifier the price feed knows this holding by
func (h Holding) LookupKey() string {
	if h.Class == AssetClassCrypto && h.ExternalID != "" {
		return strings.ToLower(strings.TrimSpace(h.ExternalID))
	}
	return NormalizeSymbol(h.Symbol)
}

// Portfolio is the set of holdings a user owns in one asset class
type Portfolio struct {
	UserID        string
	Class         AssetClass
	Holdings      []Holding // Sorted by symbol, unique
	AggregateCost decimal.Decimal

	// ClosedCashFlow is the net cash left behind by holdings closed with a
	// sell-all under CostBasisNetCashFlow. AggregateCost always equals
	// HoldingsCost() + ClosedCashFlow.
	ClosedCashFlow decimal.Decimal
}

// NewPortfolio returns an empty portfolio
func NewPortfolio(userID string, class AssetClass) *Portfolio {
	return &Portfolio{
		UserID:         userID,
		Class:          class,
		Holdings:       []Holding{},
		AggregateCost:  decimal.Zero,
		ClosedCashFlow: decimal.Zero,
	}
}

// Find returns the holding for symbol, if any
func (p *Portfolio) Find(symbol string) (Holding, bool) {
	symbol = NormalizeSymbol(symbol)
	i := sort.Search(len(p.Holdings), func(i int) bool { return p.Holdings[i].Symbol >= symbol })
	if i < len(p.Holdings) && p.Holdings[i].Symbol == symbol {
		return p.Holdings[i], true
	}
	return Holding{}, false
}

// IsEmpty reports whether the portfolio holds nothing
func (p *Portfolio) IsEmpty() bool {
	return len(p.Holdings) == 0
}

// Clone returns a deep copy safe to hand out to callers
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Holdings = make([]Holding, len(p.Holdings))
	copy(c.Holdings, p.Holdings)
	return &c
}

// HoldingsCost sums the cost basis of every holding.
// Only used for consistency checks; the hot path reads AggregateCost.
func (p *Portfolio) HoldingsCost() decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings {
		total = total.Add(h.CostBasis)
	}
	return total
}

// Put inserts or replaces a holding, keeping Holdings sorted
func (p *Portfolio) Put(h Holding) {
	i := sort.Search(len(p.Holdings), func(i int) bool { return p.Holdings[i].Symbol >= h.Symbol })
	if i < len(p.Holdings) && p.Holdings[i].Symbol == h.Symbol {
		p.Holdings[i] = h
		return
	}
	p.Holdings = append(p.Holdings, Holding{})
	copy(p.Holdings[i+1:], p.Holdings[i:])
	p.Holdings[i] = h
}

// Remove deletes the holding for symbol, reporting whether it existed
func (p *Portfolio) Remove(symbol string) bool {
	symbol = NormalizeSymbol(symbol)
	for i := range p.Holdings {
		if p.Holdings[i].Symbol == symbol {
			p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
			return true
		}
	}
	return false
}

// Validate ensures the portfolio adheres to the ledger invariants
func (p *Portfolio) Validate() error {
	if err := p.Class.Validate(); err != nil {
		return err
	}

	for i, h := range p.Holdings {
		if h.Class != p.Class {
			return errors.New("holding asset class does not match portfolio")
		}
		// Zero-quantity holdings are removed, never stored
		if h.Quantity.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("holding %s must have a positive quantity", h.Symbol)
		}
		if i > 0 && p.Holdings[i-1].Symbol >= h.Symbol {
			return errors.New("holdings must be unique and sorted by symbol")
		}
	}

	if !p.AggregateCost.Equal(p.HoldingsCost().Add(p.ClosedCashFlow)) {
		return errors.New("aggregate cost does not match holdings cost basis")
	}

	return nil
}

// CostBasisPolicy decides how a sell reduces cost basis
type CostBasisPolicy string

const (
	// CostBasisNetCashFlow subtracts sale proceeds from cost basis. A sell-all
	// reduces the aggregate by the proceeds, not by the holding's basis.
	CostBasisNetCashFlow CostBasisPolicy = "NET_CASH_FLOW"

	// CostBasisAverage subtracts the proportional share of the holding's basis,
	// so AggregateCost always equals the sum of holding cost bases.
	CostBasisAverage CostBasisPolicy = "AVERAGE_COST"
)

// ParseCostBasisPolicy parses a policy name, defaulting to net cash flow when empty
func ParseCostBasisPolicy(s string) (CostBasisPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(CostBasisNetCashFlow):
		return CostBasisNetCashFlow, nil
	case string(CostBasisAverage):
		return CostBasisAverage, nil
	default:
		return "", fmt.Errorf("%w: unknown cost basis policy %q", ErrInvalidInput, s)
	}
}
