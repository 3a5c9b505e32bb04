package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultErr(t *testing.T) {
	dropped := []SymbolFailure{{Symbol: "DOGE", Reason: FailureTimeout}, {Symbol: "GONE", Reason: FailureNotFound}}

	complete := &ValuationResult{Class: AssetClassCrypto}
	assert.NoError(t, complete.Err())

	partial := &ValuationResult{Class: AssetClassCrypto, Failures: dropped}
	err := partial.Err()
	assert.True(t, errors.Is(err, ErrPartialUpstreamFailure))
	assert.Contains(t, err.Error(), "DOGE")
	assert.False(t, errors.Is(err, ErrUpstreamUnavailable))

	curve := &MergeResult{Period: PeriodWeek}
	assert.False(t, curve.Partial())
	assert.NoError(t, curve.Err())

	curve.Failures = dropped[:1]
	assert.True(t, curve.Partial())
	assert.True(t, errors.Is(curve.Err(), ErrPartialUpstreamFailure))
}
