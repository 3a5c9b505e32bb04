package domain

import "errors"

// Ledger errors. All of them reject the request with no partial effect.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrAssetNotFound        = errors.New("asset not found")
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrConcurrentUpdate is returned by a repository when the holding it was asked
	// to mutate no longer matches the state the mutation was computed from.
	ErrConcurrentUpdate = errors.New("concurrent ledger update")
)

// Valuation errors
var (
	// ErrUpstreamUnavailable means no requested symbol could be priced and at
	// least one failure was a feed outage or timeout.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPartialUpstreamFailure is never returned by a valuation call. Result
	// Err methods wrap it when some symbols were dropped.
	ErrPartialUpstreamFailure = errors.New("partial upstream failure")
)

// Price feed errors
var (
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrFeedUnavailable = errors.New("price feed unavailable")
)
