package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/alphafolio-backend/internal/adapter/repository/memory"
	"github.com/simaogato/alphafolio-backend/internal/domain"
	"github.com/simaogato/alphafolio-backend/internal/usecase/dashboard"
	"github.com/simaogato/alphafolio-backend/internal/usecase/ledger"
	"github.com/simaogato/alphafolio-backend/internal/usecase/valuation"
)

const testToken = "test-token"

// fixedFeed prices every symbol from a static table
type fixedFeed map[string]decimal.Decimal

func (f fixedFeed) GetQuote(ctx context.Context, class domain.AssetClass, identifier string) (domain.Quote, error) {
	price, ok := f[identifier]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, identifier)
	}
	return domain.Quote{Price: price, DayChangePercent: decimal.NewFromInt(1)}, nil
}

func (f fixedFeed) GetHistory(ctx context.Context, class domain.AssetClass, identifier string, period domain.Period) ([]domain.PricePoint, error) {
	price, ok := f[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, identifier)
	}
	return []domain.PricePoint{{Timestamp: time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), Close: price}}, nil
}

// downFeed fails every call as an outage
type downFeed struct{}

func (downFeed) GetQuote(ctx context.Context, class domain.AssetClass, identifier string) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrFeedUnavailable
}

func (downFeed) GetHistory(ctx context.Context, class domain.AssetClass, identifier string, period domain.Period) ([]domain.PricePoint, error) {
	return nil, domain.ErrFeedUnavailable
}

func startServer(t *testing.T, feed domain.PriceFeed) *grpclib.ClientConn {
	t.Helper()

	cal, err := domain.DefaultSessionCalendar()
	require.NoError(t, err)

	repo := memory.NewLedgerRepository()
	ledgerService := ledger.NewLedgerService(repo, domain.CostBasisNetCashFlow)
	valuationService := valuation.NewValuationService(repo, feed, cal)
	dashboardService := dashboard.NewDashboardService(valuationService)

	lis := bufconn.Listen(1 << 20)
	srv := grpclib.NewServer(grpclib.UnaryInterceptor(AuthInterceptor(testToken)))
	RegisterPortfolioServiceServer(srv, NewServer(ledgerService, valuationService, dashboardService))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(t *testing.T, conn *grpclib.ClientConn, userID, method string, req map[string]interface{}) (*structpb.Struct, error) {
	t.Helper()

	in, err := structpb.NewStruct(req)
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", testToken, UserIDHeader, userID)
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, FullMethod(method), in, out)
	return out, err
}

func TestServer_BuySellFlow(t *testing.T) {
	conn := startServer(t, fixedFeed{"AAPL": decimal.NewFromInt(150)})

	resp, err := call(t, conn, "alice", "Buy", map[string]interface{}{
		"class": "stock", "symbol": "aapl", "quantity": "10", "price": "100", "occurred_at": "2024-03-01",
	})
	require.NoError(t, err)

	holdings := resp.Fields["holdings"].GetListValue().GetValues()
	require.Len(t, holdings, 1)
	holding := holdings[0].GetStructValue().GetFields()
	assert.Equal(t, "AAPL", holding["symbol"].GetStringValue())
	assert.Equal(t, "10", holding["quantity"].GetStringValue())
	assert.Equal(t, "1000", resp.Fields["aggregate_cost"].GetStringValue())

	// Sell by number instead of string
	resp, err = call(t, conn, "alice", "Sell", map[string]interface{}{
		"class": "equity", "symbol": "AAPL", "quantity": 4, "price": "120",
	})
	require.NoError(t, err)
	assert.Equal(t, "520", resp.Fields["aggregate_cost"].GetStringValue())

	resp, err = call(t, conn, "alice", "ListTransactions", map[string]interface{}{"class": "equity"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), resp.Fields["total_count"].GetNumberValue())
	txs := resp.Fields["transactions"].GetListValue().GetValues()
	require.Len(t, txs, 2)
	assert.Equal(t, "SELL", txs[0].GetStructValue().GetFields()["action"].GetStringValue())

	resp, err = call(t, conn, "alice", "Valuate", map[string]interface{}{"class": "equity"})
	require.NoError(t, err)
	assert.Equal(t, "900", resp.Fields["total_value"].GetStringValue())
	assert.Equal(t, "520", resp.Fields["total_cost"].GetStringValue())
	assert.False(t, resp.Fields["partial"].GetBoolValue())

	resp, err = call(t, conn, "alice", "GetNetWorth", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "900", resp.Fields["total_net_worth"].GetStringValue())
	assert.Equal(t, "0", resp.Fields["crypto"].GetStringValue())

	resp, err = call(t, conn, "alice", "GetValueCurve", map[string]interface{}{"period": "day"})
	require.NoError(t, err)
	points := resp.Fields["points"].GetListValue().GetValues()
	require.Len(t, points, 1)
	assert.Equal(t, "900", points[0].GetStructValue().GetFields()["total_value"].GetStringValue())

	// Another user's ledger is untouched
	resp, err = call(t, conn, "bob", "GetPortfolio", map[string]interface{}{"class": "equity"})
	require.NoError(t, err)
	assert.Empty(t, resp.Fields["holdings"].GetListValue().GetValues())
}

func TestServer_ErrorCodes(t *testing.T) {
	conn := startServer(t, downFeed{})

	_, err := call(t, conn, "alice", "Buy", map[string]interface{}{
		"class": "equity", "symbol": "MSFT", "quantity": "5", "price": "10",
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		req    map[string]interface{}
		code   codes.Code
	}{
		{"Unknown class", "GetPortfolio", map[string]interface{}{"class": "bonds"}, codes.InvalidArgument},
		{"Bad quantity", "Buy", map[string]interface{}{"class": "equity", "symbol": "X", "quantity": "abc", "price": "1"}, codes.InvalidArgument},
		{"Missing price", "Buy", map[string]interface{}{"class": "equity", "symbol": "X", "quantity": "1"}, codes.InvalidArgument},
		{"Bad date", "Buy", map[string]interface{}{"class": "equity", "symbol": "X", "quantity": "1", "price": "1", "occurred_at": "yesterday"}, codes.InvalidArgument},
		{"Sell unknown asset", "Sell", map[string]interface{}{"class": "equity", "symbol": "TSLA", "quantity": "1", "price": "1"}, codes.NotFound},
		{"Oversell", "Sell", map[string]interface{}{"class": "equity", "symbol": "MSFT", "quantity": "6", "price": "1"}, codes.InvalidArgument},
		{"Feed down", "Valuate", map[string]interface{}{"class": "equity"}, codes.Unavailable},
		{"Unknown period", "GetValueCurve", map[string]interface{}{"period": "decade"}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, conn, "alice", tt.method, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestServer_UnknownSymbolIsPartialNotUnavailable(t *testing.T) {
	conn := startServer(t, fixedFeed{})

	_, err := call(t, conn, "alice", "Buy", map[string]interface{}{
		"class": "equity", "symbol": "MSFT", "quantity": "5", "price": "10",
	})
	require.NoError(t, err)

	resp, err := call(t, conn, "alice", "Valuate", map[string]interface{}{"class": "equity"})
	require.NoError(t, err)
	assert.True(t, resp.Fields["partial"].GetBoolValue())
	assert.Equal(t, "0", resp.Fields["total_value"].GetStringValue())
	assert.Equal(t, "50", resp.Fields["total_cost"].GetStringValue())

	failures := resp.Fields["failures"].GetListValue().GetValues()
	require.Len(t, failures, 1)
	assert.Equal(t, "MSFT", failures[0].GetStructValue().GetFields()["symbol"].GetStringValue())
	assert.Equal(t, string(domain.FailureNotFound), failures[0].GetStructValue().GetFields()["reason"].GetStringValue())

	resp, err = call(t, conn, "alice", "GetValueCurve", map[string]interface{}{"period": "week"})
	require.NoError(t, err)
	assert.True(t, resp.Fields["partial"].GetBoolValue())
	assert.Empty(t, resp.Fields["points"].GetListValue().GetValues())
}

func TestServer_RequiresAuth(t *testing.T) {
	conn := startServer(t, fixedFeed{})

	in, err := structpb.NewStruct(map[string]interface{}{"class": "equity"})
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "wrong", UserIDHeader, "alice")
	err = conn.Invoke(ctx, FullMethod("GetPortfolio"), in, new(structpb.Struct))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"Invalid input", fmt.Errorf("%w: bad", domain.ErrInvalidInput), codes.InvalidArgument},
		{"Insufficient quantity", fmt.Errorf("%w: 5 > 3", domain.ErrInsufficientQuantity), codes.InvalidArgument},
		{"Asset not found", domain.ErrAssetNotFound, codes.NotFound},
		{"Upstream unavailable", domain.ErrUpstreamUnavailable, codes.Unavailable},
		{"Concurrent update", fmt.Errorf("apply: %w", domain.ErrConcurrentUpdate), codes.Aborted},
		{"Deadline", fmt.Errorf("quote: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"Canceled", context.Canceled, codes.Canceled},
		{"Status passthrough", status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
		{"Unknown", fmt.Errorf("disk on fire"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(mapError(tt.err)))
		})
	}

	assert.NoError(t, mapError(nil))
}
