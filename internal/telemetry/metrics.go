package telemetry

import (
	"context"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

var (
	feedCallsTotal           = expvar.NewInt("feed_calls_total")
	feedCallFailuresTotal    = expvar.NewInt("feed_call_failures_total")
	feedCallLatencyMsTotal   = expvar.NewInt("feed_call_latency_ms_total")
	feedCallsByOp            = expvar.NewMap("feed_calls_by_op")
	feedFailuresByReason     = expvar.NewMap("feed_failures_by_reason")
	rpcRequestsTotal         = expvar.NewInt("rpc_requests_total")
	rpcRequestsErrorsTotal   = expvar.NewInt("rpc_requests_errors_total")
	rpcRequestLatencyMsTotal = expvar.NewInt("rpc_request_latency_ms_total")
	rpcRequestsByMethod      = expvar.NewMap("rpc_requests_by_method")
	rpcRequestErrorsByCode   = expvar.NewMap("rpc_request_errors_by_code")
	httpRequestsTotal        = expvar.NewInt("http_requests_total")
	httpRequestsByRoute      = expvar.NewMap("http_requests_by_route")
	httpRequestErrorsByRoute = expvar.NewMap("http_request_errors_by_route")
)

// Recorder reports price feed calls to expvar. It satisfies valuation.Metrics.
type Recorder struct{}

// RecordFeedCall counts one feed call; failure is empty on success
func (Recorder) RecordFeedCall(op string, class domain.AssetClass, failure domain.FailureReason, elapsed time.Duration) {
	key := op + " " + string(class)

	feedCallsTotal.Add(1)
	feedCallsByOp.Add(key, 1)
	feedCallLatencyMsTotal.Add(elapsed.Milliseconds())

	if failure != "" {
		feedCallFailuresTotal.Add(1)
		feedFailuresByReason.Add(string(failure), 1)
	}
}

// UnaryServerInterceptor records request volume, error codes, and latency per gRPC method.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		rpcRequestsTotal.Add(1)
		rpcRequestsByMethod.Add(methodName(info.FullMethod), 1)
		rpcRequestLatencyMsTotal.Add(time.Since(start).Milliseconds())

		if err != nil {
			rpcRequestsErrorsTotal.Add(1)
			rpcRequestErrorsByCode.Add(status.Code(err).String(), 1)
		}

		return resp, err
	}
}

func methodName(fullMethod string) string {
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 && i < len(fullMethod)-1 {
		return fullMethod[i+1:]
	}
	return fullMethod
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMetricsMiddleware records request volume and errors for the operational routes.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		key := strings.TrimSpace(r.Method + " " + requestRoute(r))

		httpRequestsTotal.Add(1)
		httpRequestsByRoute.Add(key, 1)

		if recorder.status >= http.StatusBadRequest {
			httpRequestErrorsByRoute.Add(key, 1)
		}
	})
}

func requestRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return strings.TrimSpace(r.URL.Path)
}
