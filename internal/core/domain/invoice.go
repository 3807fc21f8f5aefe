package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// HeaderPaymentHash carries the settlement proof on the second order request.
	HeaderPaymentHash = "x-payment-hash"
	// HeaderInvoiceID names the invoice the proof settles.
	HeaderInvoiceID = "x-invoice-id"
)

// Invoice is the payment demand returned with a payment-required response.
type Invoice struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Chain       string          `json:"chain,omitempty"`
	Destination string          `json:"destination"`
	InvoiceID   string          `json:"invoiceId"`
	Item        string          `json:"item,omitempty"`
	Quantity    int             `json:"quantity,omitempty"`
	IssuedAt    time.Time       `json:"issuedAt"`
	ExpiresAt   time.Time       `json:"expiresAt,omitempty"`
}

// Validate checks the fields a payer needs before settling.
func (i Invoice) Validate() error {
	if i.Destination == "" {
		return fmt.Errorf("%w: invoice %q has no destination", ErrBackend, i.InvoiceID)
	}
	if !i.Amount.IsPositive() {
		return fmt.Errorf("%w: invoice %q has non-positive amount %s", ErrBackend, i.InvoiceID, i.Amount)
	}
	return nil
}

// Matches reports whether the invoice was issued for this item and quantity.
func (i Invoice) Matches(req OrderRequest) bool {
	return i.Item == req.Item && i.Quantity == req.Quantity
}

// Expired reports whether the invoice is past its expiry at t.
func (i Invoice) Expired(t time.Time) bool {
	return !i.ExpiresAt.IsZero() && t.After(i.ExpiresAt)
}
