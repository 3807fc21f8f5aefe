package handler

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/restock-agent/internal/adapter/handler/pb"
	"github.com/rl1809/restock-agent/internal/adapter/storage"
	"github.com/rl1809/restock-agent/internal/core/service"
)

func newGRPCClient(t *testing.T, opts ...func(*service.LedgerConfig)) (pb.SupplierClient, *storage.MemoryLedger) {
	t.Helper()

	cfg := service.LedgerConfig{
		Destination: supplierWallet,
		Pricing:     service.DefaultPricing(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ledger := storage.NewMemoryLedger()
	svc := service.NewLedgerService(storage.NewMemoryCache(), ledger, cfg, service.WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 18, 0, 0, 0, time.Local)
	}))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(slog.Default())))
	pb.RegisterSupplierServer(srv, NewGRPCHandler(svc, nil, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return pb.NewSupplierClient(conn), ledger
}

func TestGRPCBuyStock_PaymentRequired(t *testing.T) {
	client, ledger := newGRPCClient(t)

	resp, err := client.BuyStock(context.Background(), &pb.BuyStockRequest{Item: "Rice", Quantity: 50})
	require.NoError(t, err)
	assert.True(t, resp.PaymentRequired)
	require.NotNil(t, resp.PaymentDetails)
	// 18:00 is inside the surge window
	assert.Equal(t, "0.00012", resp.PaymentDetails.Amount.String())
	assert.Equal(t, supplierWallet, resp.PaymentDetails.Destination)

	orders, _ := ledger.ListOrders(context.Background())
	assert.Empty(t, orders)
}

func TestGRPCBuyStock_ProofAndReplay(t *testing.T) {
	client, _ := newGRPCClient(t, rejectReplays)
	ctx := context.Background()

	invoice, err := client.BuyStock(ctx, &pb.BuyStockRequest{Item: "Rice", Quantity: 50})
	require.NoError(t, err)

	resp, err := client.BuyStock(ctx, &pb.BuyStockRequest{
		Item:        "Rice",
		Quantity:    50,
		PaymentHash: "0xABC",
		InvoiceId:   invoice.PaymentDetails.InvoiceID,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TrackingId)

	_, err = client.BuyStock(ctx, &pb.BuyStockRequest{Item: "Rice", Quantity: 50, PaymentHash: "0xABC"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	summary, err := client.ListOrders(ctx, &pb.ListOrdersRequest{})
	require.NoError(t, err)
	require.Len(t, summary.Orders, 1)
	assert.Equal(t, "0.00012", summary.TotalRevenue.String())
}

func TestGRPCBuyStock_InvalidArgument(t *testing.T) {
	client, _ := newGRPCClient(t)

	_, err := client.BuyStock(context.Background(), &pb.BuyStockRequest{Item: "Rice", Quantity: 0})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
