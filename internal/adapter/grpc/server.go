package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/alphafolio-backend/internal/domain"
	"github.com/simaogato/alphafolio-backend/internal/usecase/dashboard"
	"github.com/simaogato/alphafolio-backend/internal/usecase/ledger"
	"github.com/simaogato/alphafolio-backend/internal/usecase/valuation"
)

// Server implements the PortfolioService gRPC server
type Server struct {
	LedgerService    *ledger.LedgerService
	ValuationService *valuation.ValuationService
	DashboardService *dashboard.DashboardService
}

// NewServer creates a new gRPC server instance
func NewServer(
	ledgerService *ledger.LedgerService,
	valuationService *valuation.ValuationService,
	dashboardService *dashboard.DashboardService,
) *Server {
	return &Server{
		LedgerService:    ledgerService,
		ValuationService: valuationService,
		DashboardService: dashboardService,
	}
}

var _ PortfolioServiceServer = (*Server)(nil)

// Buy handles the Buy RPC
func (s *Server) Buy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	class, err := classField(req)
	if err != nil {
		return nil, err
	}

	// Parse quantity and price from string to decimal
	quantity, err := decimalField(req, "quantity")
	if err != nil {
		return nil, err
	}
	price, err := decimalField(req, "price")
	if err != nil {
		return nil, err
	}

	occurredAt, err := timeField(req, "occurred_at")
	if err != nil {
		return nil, err
	}

	// Build input for usecase
	input := ledger.BuyInput{
		Class:      class,
		Symbol:     stringField(req, "symbol"),
		Name:       stringField(req, "name"),
		Quantity:   quantity,
		Price:      price,
		OccurredAt: occurredAt,
		ExternalID: stringField(req, "external_id"),
	}

	portfolio, err := s.LedgerService.Buy(ctx, userID, input)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(portfolioToMap(portfolio))
}

// Sell handles the Sell RPC
func (s *Server) Sell(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	class, err := classField(req)
	if err != nil {
		return nil, err
	}

	quantity, err := decimalField(req, "quantity")
	if err != nil {
		return nil, err
	}
	price, err := decimalField(req, "price")
	if err != nil {
		return nil, err
	}

	occurredAt, err := timeField(req, "occurred_at")
	if err != nil {
		return nil, err
	}

	input := ledger.SellInput{
		Class:      class,
		Symbol:     stringField(req, "symbol"),
		Quantity:   quantity,
		Price:      price,
		SellingAll: boolField(req, "selling_all"),
		OccurredAt: occurredAt,
	}

	portfolio, err := s.LedgerService.Sell(ctx, userID, input)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(portfolioToMap(portfolio))
}

// GetPortfolio handles the GetPortfolio RPC
func (s *Server) GetPortfolio(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	class, err := classField(req)
	if err != nil {
		return nil, err
	}

	portfolio, err := s.LedgerService.GetPortfolio(ctx, userID, class)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(portfolioToMap(portfolio))
}

// ListTransactions handles the ListTransactions RPC
func (s *Server) ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	class, err := classField(req)
	if err != nil {
		return nil, err
	}

	transactions, err := s.LedgerService.GetTransactions(ctx, userID, class)
	if err != nil {
		return nil, mapError(err)
	}

	// Convert domain transactions to response entries
	entries := make([]interface{}, 0, len(transactions))
	for _, tx := range transactions {
		entries = append(entries, transactionToMap(tx))
	}

	return toStruct(map[string]interface{}{
		"transactions": entries,
		"total_count":  len(transactions),
	})
}

// Valuate handles the Valuate RPC
func (s *Server) Valuate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	class, err := classField(req)
	if err != nil {
		return nil, err
	}

	result, err := s.ValuationService.Valuate(ctx, userID, class)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(valuationToMap(result))
}

// GetValueCurve handles the GetValueCurve RPC
func (s *Server) GetValueCurve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	period, err := domain.ParsePeriod(stringField(req, "period"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	result, err := s.ValuationService.GetCombinedValueCurve(ctx, userID, period)
	if err != nil {
		return nil, mapError(err)
	}

	points := make([]interface{}, 0, len(result.Points))
	for _, p := range result.Points {
		points = append(points, map[string]interface{}{
			"timestamp":   formatTime(p.Timestamp),
			"total_value": p.TotalValue.String(),
		})
	}

	return toStruct(map[string]interface{}{
		"period":   string(result.Period),
		"points":   points,
		"partial":  result.Partial(),
		"failures": failuresToList(result.Failures),
	})
}

// GetNetWorth handles the GetNetWorth RPC
func (s *Server) GetNetWorth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}

	// Call dashboard service
	result, err := s.DashboardService.GetNetWorth(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	unavailable := make([]interface{}, 0, len(result.Unavailable))
	for _, class := range result.Unavailable {
		unavailable = append(unavailable, string(class))
	}

	// Build response
	return toStruct(map[string]interface{}{
		"total_net_worth": result.Total.String(),
		"equity":          result.Equity.String(),
		"crypto":          result.Crypto.String(),
		"cost":            result.Cost.String(),
		"roi_percent":     nullDecimal(result.ROI),
		"failures":        failuresToList(result.Failures),
		"unavailable":     unavailable,
	})
}

// requestUser resolves the ledger owner set by AuthInterceptor, falling back
// to the raw metadata when the server runs without it
func requestUser(ctx context.Context) (string, error) {
	if userID, ok := UserIDFromContext(ctx); ok {
		return userID, nil
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(UserIDHeader); len(values) > 0 && values[0] != "" {
			return values[0], nil
		}
	}
	return "", status.Error(codes.InvalidArgument, "missing x-user-id header")
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	errorMsg := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInsufficientQuantity):
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	case errors.Is(err, domain.ErrAssetNotFound):
		return status.Errorf(codes.NotFound, "%s", errorMsg)
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return status.Errorf(codes.Unavailable, "%s", errorMsg)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return status.Errorf(codes.Aborted, "%s", errorMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", errorMsg)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", errorMsg)
	default:
		// Default to Internal error for unknown errors
		return status.Errorf(codes.Internal, "%s", errorMsg)
	}
}
