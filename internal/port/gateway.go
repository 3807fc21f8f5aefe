package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

// ProofVerifier decides whether a payment proof settles what the supplier expects.
type ProofVerifier interface {
	Verify(ctx context.Context, proof string, expect domain.PaymentExpectation) error
}

// SupplierGateway is the client side of the payment-challenge exchange.
type SupplierGateway interface {
	// RequestOrder sends one phase of the exchange; empty proof means phase one
	RequestOrder(ctx context.Context, req domain.OrderRequest, proof, invoiceID string) (domain.OrderResponse, error)

	// ListOrders fetches the supplier ledger summary
	ListOrders(ctx context.Context) (domain.LedgerSummary, error)
}

// SettlementExecutor moves value on chain. Transfers are never retried.
type SettlementExecutor interface {
	Transfer(ctx context.Context, destination string, amount decimal.Decimal) (domain.PendingTransfer, error)
	AwaitConfirmation(ctx context.Context, tx domain.PendingTransfer, timeout time.Duration) (domain.Receipt, error)
}

// SupplierCursor walks discovered suppliers once; it cannot be rewound.
type SupplierCursor interface {
	Next(ctx context.Context) bool
	Supplier() domain.Supplier
	Err() error
}

// SupplierDirectory is the fallback discovery protocol.
type SupplierDirectory interface {
	Discover(ctx context.Context, item string, quantity int) SupplierCursor
	PlaceOrder(ctx context.Context, supplier domain.Supplier, req domain.OrderRequest) (domain.DirectOrderResult, error)
}
