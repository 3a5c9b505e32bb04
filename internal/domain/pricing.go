package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period is the window of a historical price series
type Period string

const (
	PeriodDay   Period = "DAY"
	PeriodWeek  Period = "WEEK"
	PeriodMonth Period = "MONTH"
	PeriodYear  Period = "YEAR"
)

// ParsePeriod converts "day", "week", "month" or "year" to a Period
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Validate returns ErrInvalidInput for an unknown period
func (p Period) Validate() error {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return nil
	default:
		return fmt.Errorf("%w: unknown period %q", ErrInvalidInput, string(p))
	}
}

// Intraday reports whether buckets are sub-daily
func (p Period) Intraday() bool {
	return p == PeriodDay
}

// Days is the length of the window in calendar days, 0 for an unknown period
func (p Period) Days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	case PeriodYear:
		return 365
	default:
		return 0
	}
}

// Quote is the latest price of an asset
type Quote struct {
	Price            decimal.Decimal
	DayChangePercent decimal.Decimal
}

// PricePoint is one close of a historical series
type PricePoint struct {
	Timestamp time.Time
	Close     decimal.Decimal
}

// PriceFeed is the market-data adapter contract consumed by the valuation core.
// Implementations return ErrSymbolNotFound for an unknown identifier and
// ErrFeedUnavailable when the upstream cannot be reached.
type PriceFeed interface {
	// GetQuote returns the current price and the day change of identifier
	GetQuote(ctx context.Context, class AssetClass, identifier string) (Quote, error)

	// GetHistory returns the series of identifier over period, ascending by time.
	// Equity series only contain points within trading sessions.
	GetHistory(ctx context.Context, class AssetClass, identifier string, period Period) ([]PricePoint, error)
}
