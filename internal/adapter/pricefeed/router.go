package pricefeed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

// Router dispatches price feed calls by asset class
type Router struct {
	Equity domain.PriceFeed
	Crypto domain.PriceFeed
}

// NewRouter creates a Router over one feed per asset class
func NewRouter(equity, crypto domain.PriceFeed) *Router {
	return &Router{Equity: equity, Crypto: crypto}
}

func (r *Router) feed(class domain.AssetClass) (domain.PriceFeed, error) {
	switch class {
	case domain.AssetClassEquity:
		if r.Equity != nil {
			return r.Equity, nil
		}
	case domain.AssetClassCrypto:
		if r.Crypto != nil {
			return r.Crypto, nil
		}
	default:
		return nil, class.Validate()
	}
	return nil, errors.Wrapf(domain.ErrFeedUnavailable, "no price feed configured for %s", class)
}

func (r *Router) GetQuote(ctx context.Context, class domain.AssetClass, identifier string) (domain.Quote, error) {
	f, err := r.feed(class)
	if err != nil {
		return domain.Quote{}, err
	}
	return f.GetQuote(ctx, class, identifier)
}

func (r *Router) GetHistory(ctx context.Context, class domain.AssetClass, identifier string, period domain.Period) ([]domain.PricePoint, error) {
	f, err := r.feed(class)
	if err != nil {
		return nil, err
	}
	return f.GetHistory(ctx, class, identifier, period)
}
