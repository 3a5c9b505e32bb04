package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

func mapValue(m *expvar.Map, key string) int64 {
	if v, ok := m.Get(key).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

func TestRecorder_RecordFeedCall(t *testing.T) {
	calls := feedCallsTotal.Value()
	failures := feedCallFailuresTotal.Value()
	quotes := mapValue(feedCallsByOp, "quote EQUITY")
	timeouts := mapValue(feedFailuresByReason, string(domain.FailureTimeout))

	var r Recorder
	r.RecordFeedCall("quote", domain.AssetClassEquity, "", 15*time.Millisecond)
	r.RecordFeedCall("quote", domain.AssetClassEquity, domain.FailureTimeout, 5*time.Second)

	assert.Equal(t, calls+2, feedCallsTotal.Value())
	assert.Equal(t, failures+1, feedCallFailuresTotal.Value())
	assert.Equal(t, quotes+2, mapValue(feedCallsByOp, "quote EQUITY"))
	assert.Equal(t, timeouts+1, mapValue(feedFailuresByReason, string(domain.FailureTimeout)))
}

func TestUnaryServerInterceptor(t *testing.T) {
	interceptor := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/alphafolio.v1.PortfolioService/Valuate"}

	requests := rpcRequestsTotal.Value()
	valuates := mapValue(rpcRequestsByMethod, "Valuate")
	unavailable := mapValue(rpcRequestErrorsByCode, codes.Unavailable.String())

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "feed down")
	})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	assert.Equal(t, requests+2, rpcRequestsTotal.Value())
	assert.Equal(t, valuates+2, mapValue(rpcRequestsByMethod, "Valuate"))
	assert.Equal(t, unavailable+1, mapValue(rpcRequestErrorsByCode, codes.Unavailable.String()))
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, "Buy", methodName("/alphafolio.v1.PortfolioService/Buy"))
	assert.Equal(t, "bare", methodName("bare"))
	assert.Equal(t, "trailing/", methodName("trailing/"))
}

func TestRouter(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessCheck
		path       string
		wantStatus int
		wantBody   string
	}{
		{"Health", nil, "/healthz", http.StatusOK, "ok"},
		{"Ready without check", nil, "/readyz", http.StatusOK, "ready"},
		{"Ready", func(ctx context.Context) error { return nil }, "/readyz", http.StatusOK, "ready"},
		{"Not ready", func(ctx context.Context) error { return errors.New("db down") }, "/readyz", http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRouter(tt.ready).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["status"])
		})
	}
}

func TestRouter_DebugVars(t *testing.T) {
	before := mapValue(httpRequestsByRoute, "GET /debug/vars")

	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var vars map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vars))
	assert.Contains(t, vars, "feed_calls_total")
	assert.Contains(t, vars, "rpc_requests_by_method")

	assert.Equal(t, before+1, mapValue(httpRequestsByRoute, "GET /debug/vars"))
}
