package pricefeed

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

const yahooDefaultBaseURL = "https://query1.finance.yahoo.com"

// YahooFeed serves equity quotes and histories from the Yahoo Finance chart API
type YahooFeed struct {
	baseURL  string
	client   *http.Client
	calendar *domain.SessionCalendar
}

// NewYahooFeed creates a feed. Histories are filtered to calendar sessions.
func NewYahooFeed(baseURL string, calendar *domain.SessionCalendar) *YahooFeed {
	resolvedBaseURL := strings.TrimRight(baseURL, "/")
	if resolvedBaseURL == "" {
		resolvedBaseURL = yahooDefaultBaseURL
	}
	return &YahooFeed{
		baseURL:  resolvedBaseURL,
		client:   newHTTPClient(),
		calendar: calendar,
	}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooRange maps a period to the chart range and interval. The day period
// spans five sessions so the previous close is always present.
func yahooRange(period domain.Period) (string, string, error) {
	switch period {
	case domain.PeriodDay:
		return "5d", "5m", nil
	case domain.PeriodWeek:
		return "1mo", "1d", nil
	case domain.PeriodMonth:
		return "3mo", "1d", nil
	case domain.PeriodYear:
		return "2y", "1d", nil
	default:
		return "", "", period.Validate()
	}
}

func (f *YahooFeed) chart(ctx context.Context, symbol, rng, interval string) (*yahooChartResponse, error) {
	endpoint, err := url.Parse(f.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol))
	if err != nil {
		return nil, errors.Wrap(domain.ErrFeedUnavailable, err.Error())
	}
	query := endpoint.Query()
	query.Set("range", rng)
	query.Set("interval", interval)
	endpoint.RawQuery = query.Encode()

	var payload yahooChartResponse
	headers := map[string]string{"User-Agent": "Mozilla/5.0"}
	if err := getJSON(ctx, f.client, "yahoo", endpoint.String(), headers, &payload); err != nil {
		return nil, err
	}

	if e := payload.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, errors.Wrapf(domain.ErrSymbolNotFound, "yahoo: %s", e.Description)
		}
		return nil, errors.Wrapf(domain.ErrFeedUnavailable, "yahoo %s: %s", e.Code, e.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, errors.Wrapf(domain.ErrSymbolNotFound, "yahoo has no chart for %s", symbol)
	}
	return &payload, nil
}

// GetQuote returns the regular market price and the change from the previous close
func (f *YahooFeed) GetQuote(ctx context.Context, class domain.AssetClass, identifier string) (domain.Quote, error) {
	symbol, err := tickerSymbol(class, identifier)
	if err != nil {
		return domain.Quote{}, err
	}

	payload, err := f.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return domain.Quote{}, err
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return domain.Quote{}, errors.Wrapf(domain.ErrSymbolNotFound, "yahoo has no price for %s", symbol)
	}

	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	prev := meta.ChartPreviousClose
	if prev == 0 {
		prev = meta.PreviousClose
	}

	change := decimal.Zero
	if prev != 0 {
		p := decimal.NewFromFloat(prev)
		change = price.Sub(p).Div(p).Mul(decimal.NewFromInt(100))
	}

	return domain.Quote{Price: price, DayChangePercent: change}, nil
}

// GetHistory returns the closes of symbol over period, in-session points only
func (f *YahooFeed) GetHistory(ctx context.Context, class domain.AssetClass, identifier string, period domain.Period) ([]domain.PricePoint, error) {
	symbol, err := tickerSymbol(class, identifier)
	if err != nil {
		return nil, err
	}
	rng, interval, err := yahooRange(period)
	if err != nil {
		return nil, err
	}

	payload, err := f.chart(ctx, symbol, rng, interval)
	if err != nil {
		return nil, err
	}

	result := payload.Chart.Result[0]
	var closes []*float64
	if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}

	points := make([]domain.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		t := time.Unix(ts, 0).UTC()
		if !f.keep(t, period) {
			continue
		}
		points = append(points, domain.PricePoint{Timestamp: t, Close: decimal.NewFromFloat(*closes[i])})
	}
	if len(points) == 0 {
		return nil, errors.Wrapf(domain.ErrSymbolNotFound, "yahoo has no history for %s", symbol)
	}

	return points, nil
}

// keep drops pre/post-market bars; daily bars only need a trading day
func (f *YahooFeed) keep(t time.Time, period domain.Period) bool {
	if f.calendar == nil {
		return true
	}
	if period.Intraday() {
		return f.calendar.InSession(t)
	}
	return f.calendar.IsTradingDay(t)
}

func tickerSymbol(class domain.AssetClass, identifier string) (string, error) {
	if class != domain.AssetClassEquity {
		return "", errors.Wrapf(domain.ErrInvalidInput, "yahoo does not serve %s", class)
	}
	symbol := domain.NormalizeSymbol(identifier)
	if symbol == "" {
		return "", errors.Wrap(domain.ErrInvalidInput, "symbol cannot be empty")
	}
	return symbol, nil
}
