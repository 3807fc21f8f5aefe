package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingTransfer is a signed transfer that has been submitted but not confirmed.
type PendingTransfer struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Nonce       uint64          `json:"nonce"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// Receipt is a confirmed transfer.
type Receipt struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"blockNumber"`
	GasUsed     uint64    `json:"gasUsed"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// PaymentExpectation is what a proof must settle.
type PaymentExpectation struct {
	Destination string
	Amount      decimal.Decimal
}
