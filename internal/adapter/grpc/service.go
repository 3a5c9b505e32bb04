package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "alphafolio.v1.PortfolioService"

// PortfolioServiceServer is the server API for the portfolio service.
// Requests and responses are google.protobuf.Struct messages.
type PortfolioServiceServer interface {
	Buy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sell(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPortfolio(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Valuate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetValueCurve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetNetWorth(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(PortfolioServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PortfolioServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(PortfolioServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the "/service/method" path of a portfolio RPC
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// PortfolioServiceDesc describes the portfolio service for grpc.Server
var PortfolioServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PortfolioServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler("Buy", PortfolioServiceServer.Buy),
		methodHandler("Sell", PortfolioServiceServer.Sell),
		methodHandler("GetPortfolio", PortfolioServiceServer.GetPortfolio),
		methodHandler("ListTransactions", PortfolioServiceServer.ListTransactions),
		methodHandler("Valuate", PortfolioServiceServer.Valuate),
		methodHandler("GetValueCurve", PortfolioServiceServer.GetValueCurve),
		methodHandler("GetNetWorth", PortfolioServiceServer.GetNetWorth),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alphafolio/v1/portfolio.proto",
}

// RegisterPortfolioServiceServer registers srv on s
func RegisterPortfolioServiceServer(s grpc.ServiceRegistrar, srv PortfolioServiceServer) {
	s.RegisterService(&PortfolioServiceDesc, srv)
}
