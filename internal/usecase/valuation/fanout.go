package valuation

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

type outcome[R any] struct {
	value R
	err   error
}

// fanOut calls fn for every item with at most limit calls in flight, each
// under its own timeout. One failure never cancels the others; outcomes are
// returned in item order.
func fanOut[T, R any](ctx context.Context, items []T, limit int, timeout time.Duration, fn func(context.Context, T) (R, error)) []outcome[R] {
	results := make([]outcome[R], len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			v, err := fn(callCtx, item)
			if err == nil && callCtx.Err() != nil {
				// A result that arrived after the deadline is not trusted
				err = callCtx.Err()
			}
			results[i] = outcome[R]{value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// classify maps a price feed error to the reason reported to callers
func classify(err error) domain.FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, domain.ErrSymbolNotFound):
		return domain.FailureNotFound
	default:
		return domain.FailureUnavailable
	}
}
