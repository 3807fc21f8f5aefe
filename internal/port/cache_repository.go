package port

import (
	"context"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

type StockRepository interface {
	// DecrementStock atomically decreases stock, floored at zero, and returns the units actually taken
	DecrementStock(ctx context.Context, item string, quantity int) (int, error)

	// IncrementStock adds fulfilled units and returns the new level
	IncrementStock(ctx context.Context, item string, quantity int) (int, error)

	// Level returns the current stock of item, zero if never set
	Level(ctx context.Context, item string) (int, error)

	// SetStock overwrites the level (bootstrap only)
	SetStock(ctx context.Context, item string, quantity int) error
}

type CacheRepository interface {
	// SaveInvoice remembers an issued invoice until ttl elapses
	SaveInvoice(ctx context.Context, invoice domain.Invoice, ttl time.Duration) error

	// GetInvoice returns nil when the invoice is unknown or expired
	GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error)

	// ClaimProof marks a payment proof as spent, returns false if it already was
	ClaimProof(ctx context.Context, proof string) (bool, error)

	// ReleaseProof undoes ClaimProof (rollback when the order cannot be recorded)
	ReleaseProof(ctx context.Context, proof string) error
}
