package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UserIDHeader is the metadata key carrying the ledger owner of a request
const UserIDHeader = "x-user-id"

type userIDKey struct{}

// WithUserID returns a context carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user ID stored by AuthInterceptor
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the authorization token from request metadata and resolves the user the
// request acts on.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If the user header is missing, it returns status.InvalidArgument.
// If valid, it calls the handler with the user ID attached to the context.
func AuthInterceptor(validToken string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeaders[0], "Bearer "))
		if token != validToken {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		userHeaders := md.Get(UserIDHeader)
		if len(userHeaders) == 0 || strings.TrimSpace(userHeaders[0]) == "" {
			return nil, status.Error(codes.InvalidArgument, "missing x-user-id header")
		}

		return handler(WithUserID(ctx, strings.TrimSpace(userHeaders[0])), req)
	}
}
