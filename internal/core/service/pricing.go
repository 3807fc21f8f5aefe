package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricing computes the total price of an order:
//
//	price = base + (surge if hour >= SurgeHour) - (bulkDiscount if quantity > BulkThreshold)
//
// rounded to Precision decimal places. The result is the whole order's
// price, not a unit price.
type Pricing struct {
	Base          decimal.Decimal
	Surge         decimal.Decimal
	BulkDiscount  decimal.Decimal
	SurgeHour     int
	BulkThreshold int
	Precision     int32
}

func DefaultPricing() Pricing {
	return Pricing{
		Base:          decimal.RequireFromString("0.0001"),
		Surge:         decimal.RequireFromString("0.00002"),
		BulkDiscount:  decimal.RequireFromString("0.00001"),
		SurgeHour:     17,
		BulkThreshold: 100,
		Precision:     6,
	}
}

// Price evaluates the formula at the supplier-local hour of at.
func (p Pricing) Price(quantity int, at time.Time) decimal.Decimal {
	price := p.Base
	if at.Hour() >= p.SurgeHour {
		price = price.Add(p.Surge)
	}
	if quantity > p.BulkThreshold {
		price = price.Sub(p.BulkDiscount)
	}
	return price.Round(p.Precision)
}
