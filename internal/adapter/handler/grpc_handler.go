package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/restock-agent/internal/adapter/handler/pb"
	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/core/service"
	"github.com/rl1809/restock-agent/internal/metrics"
)

type GRPCHandler struct {
	ledger  *service.LedgerService
	metrics *metrics.Supplier
	logger  *slog.Logger
}

func NewGRPCHandler(ledger *service.LedgerService, m *metrics.Supplier, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{ledger: ledger, metrics: m, logger: logger}
}

func (h *GRPCHandler) BuyStock(ctx context.Context, req *pb.BuyStockRequest) (*pb.BuyStockResponse, error) {
	started := time.Now()
	order := domain.OrderRequest{Item: req.GetItem(), Quantity: int(req.GetQuantity())}

	proof := strings.TrimSpace(req.GetPaymentHash())
	if proof == "" {
		return h.challenge(ctx, order, started)
	}

	recorded, err := h.ledger.Fulfill(ctx, order, proof, req.GetInvoiceId())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			h.metrics.ObserveRequest("grpc-buy-stock", "invalid", started)
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, domain.ErrDuplicateProof):
			h.metrics.ObserveRequest("grpc-buy-stock", "conflict", started)
			return nil, status.Error(codes.AlreadyExists, "payment proof already used")
		case errors.Is(err, domain.ErrProofRejected):
			h.logger.Warn("payment proof rejected", "proof", proof, "error", err)
			return h.challenge(ctx, order, started)
		default:
			h.logger.Error("order fulfillment failed", "error", err)
			h.metrics.ObserveRequest("grpc-buy-stock", "error", started)
			return nil, status.Error(codes.Internal, "internal error")
		}
	}

	h.metrics.ObserveRequest("grpc-buy-stock", "ok", started)
	h.metrics.OrderRecorded(recorded.TotalPaid.InexactFloat64())
	return &pb.BuyStockResponse{
		Success:    true,
		Message:    fmt.Sprintf("Payment verified. %d %s shipped.", recorded.Quantity, recorded.Item),
		TrackingId: recorded.TrackingID,
	}, nil
}

func (h *GRPCHandler) challenge(ctx context.Context, order domain.OrderRequest, started time.Time) (*pb.BuyStockResponse, error) {
	inv, err := h.ledger.IssueInvoice(ctx, order)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			h.metrics.ObserveRequest("grpc-buy-stock", "invalid", started)
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		h.logger.Error("invoice issuance failed", "error", err)
		h.metrics.ObserveRequest("grpc-buy-stock", "error", started)
		return nil, status.Error(codes.Internal, "internal error")
	}

	h.metrics.ObserveRequest("grpc-buy-stock", "payment_required", started)
	h.metrics.InvoiceIssued()
	return &pb.BuyStockResponse{
		Success:         false,
		Message:         "You must pay to restock this item.",
		PaymentRequired: true,
		PaymentDetails:  &inv,
	}, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, _ *pb.ListOrdersRequest) (*pb.ListOrdersResponse, error) {
	summary, err := h.ledger.Summary(ctx)
	if err != nil {
		h.logger.Error("list orders failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &pb.ListOrdersResponse{LedgerSummary: summary}, nil
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call", "method", info.FullMethod,
			"code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}
