// Package pb holds the restock.v1.Supplier gRPC contract. Messages travel
// as JSON through the codec registered below, so no generated protobuf
// code is needed.
package pb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

// CodecName is the content-subtype both ends must use.
const CodecName = "json"

const (
	ServiceName          = "restock.v1.Supplier"
	BuyStockFullMethod   = "/" + ServiceName + "/BuyStock"
	ListOrdersFullMethod = "/" + ServiceName + "/ListOrders"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type BuyStockRequest struct {
	Item        string `json:"item"`
	Quantity    int32  `json:"quantity"`
	PaymentHash string `json:"paymentHash,omitempty"`
	InvoiceId   string `json:"invoiceId,omitempty"`
}

func (r *BuyStockRequest) GetItem() string {
	if r == nil {
		return ""
	}
	return r.Item
}

func (r *BuyStockRequest) GetQuantity() int32 {
	if r == nil {
		return 0
	}
	return r.Quantity
}

func (r *BuyStockRequest) GetPaymentHash() string {
	if r == nil {
		return ""
	}
	return r.PaymentHash
}

func (r *BuyStockRequest) GetInvoiceId() string {
	if r == nil {
		return ""
	}
	return r.InvoiceId
}

// BuyStockResponse mirrors the HTTP exchange: PaymentRequired with
// PaymentDetails stands in for the 402 status.
type BuyStockResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	TrackingId      string          `json:"trackingId,omitempty"`
	PaymentRequired bool            `json:"paymentRequired,omitempty"`
	PaymentDetails  *domain.Invoice `json:"paymentDetails,omitempty"`
}

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	domain.LedgerSummary
}

type SupplierServer interface {
	BuyStock(context.Context, *BuyStockRequest) (*BuyStockResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
}

type SupplierClient interface {
	BuyStock(ctx context.Context, in *BuyStockRequest, opts ...grpc.CallOption) (*BuyStockResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
}

type supplierClient struct {
	cc grpc.ClientConnInterface
}

func NewSupplierClient(cc grpc.ClientConnInterface) SupplierClient {
	return &supplierClient{cc: cc}
}

func (c *supplierClient) BuyStock(ctx context.Context, in *BuyStockRequest, opts ...grpc.CallOption) (*BuyStockResponse, error) {
	out := new(BuyStockResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, BuyStockFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *supplierClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, ListOrdersFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterSupplierServer(s grpc.ServiceRegistrar, srv SupplierServer) {
	s.RegisterService(&Supplier_ServiceDesc, srv)
}

func _Supplier_BuyStock_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BuyStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupplierServer).BuyStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: BuyStockFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SupplierServer).BuyStock(ctx, req.(*BuyStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Supplier_ListOrders_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SupplierServer).ListOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListOrdersFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SupplierServer).ListOrders(ctx, req.(*ListOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var Supplier_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SupplierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BuyStock", Handler: _Supplier_BuyStock_Handler},
		{MethodName: "ListOrders", Handler: _Supplier_ListOrders_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "restock/v1/supplier.proto",
}
