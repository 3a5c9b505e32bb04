package grpc

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

const dateOnly = "2006-01-02"

func field(req *structpb.Struct, name string) *structpb.Value {
	if req == nil {
		return nil
	}
	return req.GetFields()[name]
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(field(req, name).GetStringValue())
}

func boolField(req *structpb.Struct, name string) bool {
	return field(req, name).GetBoolValue()
}

// decimalField accepts a decimal string or a JSON number
func decimalField(req *structpb.Struct, name string) (decimal.Decimal, error) {
	v := field(req, name)
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(strings.TrimSpace(kind.StringValue))
		if err != nil {
			return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	default:
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
}

// timeField parses RFC 3339 or YYYY-MM-DD; a missing field yields the zero time
func timeField(req *structpb.Struct, name string) (time.Time, error) {
	s := stringField(req, name)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %q", name, s)
	}
	return t, nil
}

func classField(req *structpb.Struct) (domain.AssetClass, error) {
	class, err := domain.ParseAssetClass(stringField(req, "class"))
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "%v", err)
	}
	return class, nil
}

func nullDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func portfolioToMap(p *domain.Portfolio) map[string]interface{} {
	holdings := make([]interface{}, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		holdings = append(holdings, map[string]interface{}{
			"symbol":      h.Symbol,
			"name":        h.Name,
			"external_id": h.ExternalID,
			"quantity":    h.Quantity.String(),
			"cost_basis":  h.CostBasis.String(),
		})
	}
	return map[string]interface{}{
		"class":          string(p.Class),
		"holdings":       holdings,
		"aggregate_cost": p.AggregateCost.String(),
	}
}

func transactionToMap(tx *domain.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"id":          tx.ID.String(),
		"class":       string(tx.Class),
		"symbol":      tx.Symbol,
		"name":        tx.Name,
		"quantity":    tx.Quantity.String(),
		"price":       tx.Price.String(),
		"action":      string(tx.Action),
		"occurred_at": formatTime(tx.OccurredAt),
		"recorded_at": formatTime(tx.RecordedAt),
	}
}

func failuresToList(failures []domain.SymbolFailure) []interface{} {
	out := make([]interface{}, 0, len(failures))
	for _, f := range failures {
		out = append(out, map[string]interface{}{
			"symbol":  f.Symbol,
			"reason":  string(f.Reason),
			"message": f.Message,
		})
	}
	return out
}

func valuationToMap(r *domain.ValuationResult) map[string]interface{} {
	assets := make([]interface{}, 0, len(r.Assets))
	for _, a := range r.Assets {
		assets = append(assets, map[string]interface{}{
			"symbol":             a.Symbol,
			"name":               a.Name,
			"quantity":           a.Quantity.String(),
			"price":              a.Price.String(),
			"value":              a.Value.String(),
			"cost_basis":         a.CostBasis.String(),
			"day_change_percent": a.DayChangePercent.String(),
			"roi_percent":        nullDecimal(a.ROIPercent),
		})
	}
	return map[string]interface{}{
		"class":       string(r.Class),
		"assets":      assets,
		"total_value": r.TotalValue.String(),
		"total_cost":  r.TotalCost.String(),
		"total_roi":   nullDecimal(r.TotalROI),
		"partial":     r.Partial(),
		"failures":    failuresToList(r.Failures),
	}
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}
