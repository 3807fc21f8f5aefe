package decision

import (
	"context"
	"fmt"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

const (
	DefaultRestockQuantity  = 50
	DefaultRestockThreshold = 10
)

// Local is the deterministic heuristic: below Threshold, restock Quantity
// units with urgency rising linearly as stock approaches zero.
type Local struct {
	Quantity  int
	Threshold int
}

func NewLocal() Local {
	return Local{Quantity: DefaultRestockQuantity, Threshold: DefaultRestockThreshold}
}

func (l Local) Recommend(_ context.Context, in Inputs) (domain.Recommendation, error) {
	return l.recommend(in), nil
}

func (l Local) recommend(in Inputs) domain.Recommendation {
	if l.Threshold <= 0 {
		l.Threshold = DefaultRestockThreshold
	}
	if l.Quantity <= 0 {
		l.Quantity = DefaultRestockQuantity
	}
	stock := max(in.Stock, 0)

	if stock >= l.Threshold {
		return domain.Recommendation{
			ShouldRestock: false,
			Quantity:      l.Quantity,
			Urgency:       0,
			Reason:        fmt.Sprintf("stock %d is at or above threshold %d", stock, l.Threshold),
			Source:        SourceLocal,
		}
	}

	deficit := l.Threshold - stock
	urgency := (domain.MaxUrgency*deficit + l.Threshold - 1) / l.Threshold
	return domain.Recommendation{
		ShouldRestock: true,
		Quantity:      l.Quantity,
		Urgency:       domain.ClampUrgency(urgency),
		Reason: fmt.Sprintf("stock %d below threshold %d, selling %d/h",
			stock, l.Threshold, in.Sales.SalesPerHour),
		Source: SourceLocal,
	}
}
