package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	// OrderStatusPaid is fixed at creation; orders are never updated afterwards.
	OrderStatusPaid OrderStatus = "paid"
)

// Order is a fulfilled, paid purchase recorded in the supplier ledger.
type Order struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Item           string          `json:"item"`
	Quantity       int             `json:"quantity"`
	TotalPaid      decimal.Decimal `json:"totalPaid"`
	ProofReference string          `json:"proofReference"`
	Status         OrderStatus     `json:"status"`
	InvoiceID      string          `json:"invoiceId,omitempty"`
	TrackingID     string          `json:"trackingId"`
}

// LedgerSummary is the dashboard view of the supplier ledger.
type LedgerSummary struct {
	Orders       []Order         `json:"orders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// Summarize sums the amount paid across orders.
func Summarize(orders []Order) LedgerSummary {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalPaid)
	}
	if orders == nil {
		orders = []Order{}
	}
	return LedgerSummary{Orders: orders, TotalRevenue: total}
}
