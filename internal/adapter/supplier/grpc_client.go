package supplier

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/restock-agent/internal/adapter/handler/pb"
	"github.com/rl1809/restock-agent/internal/core/domain"
)

// GRPCClient speaks the payment-challenge exchange over restock.v1.Supplier.
type GRPCClient struct {
	client pb.SupplierClient
}

func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{client: pb.NewSupplierClient(cc)}
}

// Dial opens a plaintext connection to a supplier gRPC endpoint.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (c *GRPCClient) RequestOrder(ctx context.Context, req domain.OrderRequest, proof, invoiceID string) (domain.OrderResponse, error) {
	// Quantity travels as int32
	if err := req.Validate(); err != nil {
		return domain.OrderResponse{}, err
	}
	resp, err := c.client.BuyStock(ctx, &pb.BuyStockRequest{
		Item:        req.Item,
		Quantity:    int32(req.Quantity),
		PaymentHash: proof,
		InvoiceId:   invoiceID,
	})
	if err != nil {
		return domain.OrderResponse{}, classify(err)
	}

	if resp.PaymentRequired {
		if resp.PaymentDetails == nil {
			return domain.OrderResponse{}, fmt.Errorf("%w: payment required without details", domain.ErrBackend)
		}
		return domain.OrderResponse{Invoice: resp.PaymentDetails, Message: resp.Message}, nil
	}
	if !resp.Success {
		return domain.OrderResponse{}, fmt.Errorf("%w: %s", domain.ErrOrderRejected, resp.Message)
	}
	return domain.OrderResponse{Success: true, Message: resp.Message, TrackingID: resp.TrackingId}, nil
}

func (c *GRPCClient) ListOrders(ctx context.Context) (domain.LedgerSummary, error) {
	resp, err := c.client.ListOrders(ctx, &pb.ListOrdersRequest{})
	if err != nil {
		return domain.LedgerSummary{}, classify(err)
	}
	return resp.LedgerSummary, nil
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
}
