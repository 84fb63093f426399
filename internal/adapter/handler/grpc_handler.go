package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookstore/internal/core/service"
)

const checkoutServiceName = "bookstore.v1.CheckoutService"

// jsonCodec carries messages as JSON. Clients select it with the "json"
// content subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CheckoutRPCRequest struct {
	RequestID string          `json:"request_id"`
	Shipping  ShippingRequest `json:"shipping"`
}

type GetOrderRPCRequest struct {
	OrderID int64 `json:"order_id"`
}

type CheckoutServer interface {
	Checkout(ctx context.Context, req *CheckoutRPCRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderResponse, error)
}

type GRPCHandler struct {
	checkout *service.CheckoutService
	orders   *service.OrderService
}

func NewGRPCHandler(checkout *service.CheckoutService, orders *service.OrderService) *GRPCHandler {
	return &GRPCHandler{checkout: checkout, orders: orders}
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRPCRequest) (*OrderResponse, error) {
	id, ok := identityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, ErrMissingToken.Error())
	}

	order, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		Customer:  id.Customer,
		Shipping:  req.Shipping.toDomain(),
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toOrderResponse(*order)
	return &resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderResponse, error) {
	id, ok := identityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, ErrMissingToken.Error())
	}

	order, err := h.orders.Get(ctx, id.Customer.ID, req.OrderID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toOrderResponse(*order)
	return &resp, nil
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&checkoutServiceDesc, srv)
}

var checkoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: checkoutHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookstore/v1/checkout",
}

func checkoutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckoutRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).Checkout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + checkoutServiceName + "/Checkout"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).Checkout(ctx, req.(*CheckoutRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + checkoutServiceName + "/GetOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).GetOrder(ctx, req.(*GetOrderRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CheckoutClient calls CheckoutService over a connection that uses the
// JSON codec.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

func (c *CheckoutClient) Checkout(ctx context.Context, req *CheckoutRPCRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype("json")}, opts...)
	if err := c.cc.Invoke(ctx, "/"+checkoutServiceName+"/Checkout", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CheckoutClient) GetOrder(ctx context.Context, req *GetOrderRPCRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype("json")}, opts...)
	if err := c.cc.Invoke(ctx, "/"+checkoutServiceName+"/GetOrder", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
