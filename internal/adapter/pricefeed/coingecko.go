package pricefeed

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

const (
	coinGeckoPublicBaseURL = "https://api.coingecko.com/api/v3"
	coinGeckoProBaseURL    = "https://pro-api.coingecko.com/api/v3"
)

// CoinGeckoFeed serves crypto quotes and histories keyed by CoinGecko coin id
type CoinGeckoFeed struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	client       *http.Client
	vsCurrency   string
}

// NewCoinGeckoFeed creates a feed. An empty baseURL uses the public API;
// the API key is optional there.
func NewCoinGeckoFeed(baseURL, apiKey string) *CoinGeckoFeed {
	resolvedBaseURL := strings.TrimRight(baseURL, "/")
	if resolvedBaseURL == "" {
		resolvedBaseURL = coinGeckoPublicBaseURL
	}

	header := "x-cg-demo-api-key"
	if strings.Contains(resolvedBaseURL, "pro-api.coingecko.com") {
		header = "x-cg-pro-api-key"
	}

	return &CoinGeckoFeed{
		baseURL:      resolvedBaseURL,
		apiKey:       apiKey,
		apiKeyHeader: header,
		client:       newHTTPClient(),
		vsCurrency:   "usd",
	}
}

// CoinGeckoDefaultBaseURL returns the base URL of a CoinGecko plan
func CoinGeckoDefaultBaseURL(plan string) string {
	if strings.EqualFold(plan, "pro") {
		return coinGeckoProBaseURL
	}
	return coinGeckoPublicBaseURL
}

func (f *CoinGeckoFeed) headers() map[string]string {
	if f.apiKey == "" {
		return nil
	}
	return map[string]string{f.apiKeyHeader: f.apiKey}
}

// GetQuote returns the USD price and 24h change of a coin
func (f *CoinGeckoFeed) GetQuote(ctx context.Context, class domain.AssetClass, identifier string) (domain.Quote, error) {
	id, err := coinID(class, identifier)
	if err != nil {
		return domain.Quote{}, err
	}

	endpoint, err := url.Parse(f.baseURL + "/simple/price")
	if err != nil {
		return domain.Quote{}, errors.Wrap(domain.ErrFeedUnavailable, err.Error())
	}
	query := endpoint.Query()
	query.Set("ids", id)
	query.Set("vs_currencies", f.vsCurrency)
	query.Set("include_24hr_change", "true")
	endpoint.RawQuery = query.Encode()

	var payload map[string]map[string]float64
	if err := getJSON(ctx, f.client, "coingecko", endpoint.String(), f.headers(), &payload); err != nil {
		return domain.Quote{}, err
	}

	values, ok := payload[id]
	if !ok {
		return domain.Quote{}, errors.Wrapf(domain.ErrSymbolNotFound, "coingecko has no price for %s", id)
	}
	price, ok := values[f.vsCurrency]
	if !ok {
		return domain.Quote{}, errors.Wrapf(domain.ErrSymbolNotFound, "coingecko has no %s price for %s", f.vsCurrency, id)
	}

	return domain.Quote{
		Price:            decimal.NewFromFloat(price),
		DayChangePercent: decimal.NewFromFloat(values[f.vsCurrency+"_24h_change"]),
	}, nil
}

// GetHistory returns the coin's USD price series over period. The day period
// comes at roughly five minute granularity, longer periods hourly or daily.
func (f *CoinGeckoFeed) GetHistory(ctx context.Context, class domain.AssetClass, identifier string, period domain.Period) ([]domain.PricePoint, error) {
	id, err := coinID(class, identifier)
	if err != nil {
		return nil, err
	}
	days, err := coinGeckoDays(period)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(f.baseURL + "/coins/" + url.PathEscape(id) + "/market_chart")
	if err != nil {
		return nil, errors.Wrap(domain.ErrFeedUnavailable, err.Error())
	}
	query := endpoint.Query()
	query.Set("vs_currency", f.vsCurrency)
	query.Set("days", strconv.Itoa(days))
	endpoint.RawQuery = query.Encode()

	var payload struct {
		Prices [][]float64 `json:"prices"`
	}
	if err := getJSON(ctx, f.client, "coingecko", endpoint.String(), f.headers(), &payload); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(payload.Prices))
	for _, p := range payload.Prices {
		if len(p) < 2 {
			continue
		}
		points = append(points, domain.PricePoint{
			Timestamp: time.UnixMilli(int64(p[0])).UTC(),
			Close:     decimal.NewFromFloat(p[1]),
		})
	}
	if len(points) == 0 {
		return nil, errors.Wrapf(domain.ErrSymbolNotFound, "coingecko has no history for %s", id)
	}

	return points, nil
}

func coinID(class domain.AssetClass, identifier string) (string, error) {
	if class != domain.AssetClassCrypto {
		return "", errors.Wrapf(domain.ErrInvalidInput, "coingecko does not serve %s", class)
	}
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return "", errors.Wrap(domain.ErrInvalidInput, "coin id cannot be empty")
	}
	return id, nil
}

func coinGeckoDays(period domain.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	return period.Days(), nil
}
