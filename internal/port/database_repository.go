package port

import (
	"context"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

type DatabaseRepository interface {
	// AppendOrder persists a new order; orders are never updated
	AppendOrder(ctx context.Context, order domain.Order) error

	// ListOrders returns every recorded order, oldest first
	ListOrders(ctx context.Context) ([]domain.Order, error)
}
