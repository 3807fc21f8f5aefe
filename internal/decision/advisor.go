// Package decision turns a stock level and sales telemetry into a restock
// recommendation. Advisors only advise: none of them touches stock.
package decision

import (
	"context"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

type Telemetry struct {
	SalesPerHour    int `json:"salesPerHour"`
	TotalSalesToday int `json:"totalSalesToday"`
	HourOfDay       int `json:"hourOfDay"`
}

type Market struct {
	Season         string  `json:"season"`
	SupplierRating float64 `json:"supplierRating"`
	MarketTrend    string  `json:"marketTrend"`
}

type Inputs struct {
	Item   string    `json:"item"`
	Stock  int       `json:"currentStock"`
	Sales  Telemetry `json:"sales"`
	Market Market    `json:"market"`
}

type Advisor interface {
	Recommend(ctx context.Context, in Inputs) (domain.Recommendation, error)
}
