package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/alphafolio-backend/internal/adapter/repository/memory"
	"github.com/simaogato/alphafolio-backend/internal/domain"
	"github.com/simaogato/alphafolio-backend/internal/usecase/ledger"
	"github.com/simaogato/alphafolio-backend/internal/usecase/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockValuator is a mock implementation of Valuator for testing
type MockValuator struct {
	mock.Mock
}

func (m *MockValuator) Valuate(ctx context.Context, userID string, class domain.AssetClass) (*domain.ValuationResult, error) {
	args := m.Called(ctx, userID, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ValuationResult), args.Error(1)
}

func valued(class domain.AssetClass, value, cost int64, failures ...domain.SymbolFailure) *domain.ValuationResult {
	return &domain.ValuationResult{
		Class:      class,
		TotalValue: decimal.NewFromInt(value),
		TotalCost:  decimal.NewFromInt(cost),
		Failures:   failures,
	}
}

func TestGetNetWorth_SumsBothClasses(t *testing.T) {
	ctx := context.Background()
	mockValuator := new(MockValuator)
	service := NewDashboardService(mockValuator)

	dropped := domain.SymbolFailure{Symbol: "DOGE", Reason: domain.FailureTimeout}
	mockValuator.On("Valuate", ctx, "user-1", domain.AssetClassEquity).Return(valued(domain.AssetClassEquity, 1000, 800), nil)
	mockValuator.On("Valuate", ctx, "user-1", domain.AssetClassCrypto).Return(valued(domain.AssetClassCrypto, 500, 200, dropped), nil)

	result, err := service.GetNetWorth(ctx, "user-1")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1500).Equal(result.Total))
	assert.True(t, decimal.NewFromInt(1000).Equal(result.Equity))
	assert.True(t, decimal.NewFromInt(500).Equal(result.Crypto))
	// (1500 - 1000) / 1000 * 100
	assert.True(t, decimal.NewFromInt(50).Equal(result.ROI.Decimal))
	assert.Equal(t, []domain.SymbolFailure{dropped}, result.Failures)
	assert.Empty(t, result.Unavailable)
	mockValuator.AssertExpectations(t)
}

func TestGetNetWorth_OneClassUnavailable(t *testing.T) {
	ctx := context.Background()
	mockValuator := new(MockValuator)
	service := NewDashboardService(mockValuator)

	mockValuator.On("Valuate", ctx, "user-1", domain.AssetClassEquity).Return(nil, domain.ErrUpstreamUnavailable)
	mockValuator.On("Valuate", ctx, "user-1", domain.AssetClassCrypto).Return(valued(domain.AssetClassCrypto, 500, 200), nil)

	result, err := service.GetNetWorth(ctx, "user-1")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(result.Total))
	assert.True(t, result.Equity.IsZero())
	assert.Equal(t, []domain.AssetClass{domain.AssetClassEquity}, result.Unavailable)
}

// delistedEquityFeed knows no equity symbol and prices every crypto at 5
type delistedEquityFeed struct{}

func (delistedEquityFeed) GetQuote(ctx context.Context, class domain.AssetClass, identifier string) (domain.Quote, error) {
	if class == domain.AssetClassEquity {
		return domain.Quote{}, domain.ErrSymbolNotFound
	}
	return domain.Quote{Price: decimal.NewFromInt(5)}, nil
}

func (delistedEquityFeed) GetHistory(ctx context.Context, class domain.AssetClass, identifier string, period domain.Period) ([]domain.PricePoint, error) {
	return nil, domain.ErrFeedUnavailable
}

func TestGetNetWorth_UnknownSymbolsAreNotAnOutage(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewLedgerRepository()
	ledgerService := ledger.NewLedgerService(repo, domain.CostBasisNetCashFlow)
	for _, in := range []ledger.BuyInput{
		{Class: domain.AssetClassEquity, Symbol: "DELISTED", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(40)},
		{Class: domain.AssetClassCrypto, Symbol: "BTC", ExternalID: "bitcoin", Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(4)},
	} {
		_, err := ledgerService.Buy(ctx, "user-1", in)
		require.NoError(t, err)
	}

	cal, err := domain.NewSessionCalendar(time.UTC, 9*time.Hour+30*time.Minute, 16*time.Hour)
	require.NoError(t, err)
	service := NewDashboardService(valuation.NewValuationService(repo, delistedEquityFeed{}, cal))

	result, err := service.GetNetWorth(ctx, "user-1")
	require.NoError(t, err)

	assert.Empty(t, result.Unavailable)
	assert.True(t, result.Equity.IsZero())
	assert.True(t, decimal.NewFromInt(50).Equal(result.Crypto))
	assert.True(t, decimal.NewFromInt(80).Equal(result.Cost))
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "DELISTED", result.Failures[0].Symbol)
	assert.Equal(t, domain.FailureNotFound, result.Failures[0].Reason)
}

func TestGetNetWorth_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Both classes unavailable", func(t *testing.T) {
		mockValuator := new(MockValuator)
		mockValuator.On("Valuate", ctx, "user-1", mock.Anything).Return(nil, domain.ErrUpstreamUnavailable)

		_, err := NewDashboardService(mockValuator).GetNetWorth(ctx, "user-1")
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	})

	t.Run("Repository failure", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		mockValuator := new(MockValuator)
		mockValuator.On("Valuate", ctx, "user-1", domain.AssetClassEquity).Return(valued(domain.AssetClassEquity, 1, 1), nil)
		mockValuator.On("Valuate", ctx, "user-1", domain.AssetClassCrypto).Return(nil, dbErr)

		_, err := NewDashboardService(mockValuator).GetNetWorth(ctx, "user-1")
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestGetNetWorth_EmptyLedger(t *testing.T) {
	ctx := context.Background()
	mockValuator := new(MockValuator)
	mockValuator.On("Valuate", ctx, "user-1", mock.Anything).Return(valued(domain.AssetClassEquity, 0, 0), nil)

	result, err := NewDashboardService(mockValuator).GetNetWorth(ctx, "user-1")

	require.NoError(t, err)
	assert.True(t, result.Total.IsZero())
	assert.False(t, result.ROI.Valid)
}
