package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

// Verifier checks a payment proof against the chain: the transaction must
// be mined successfully, pay the expected destination and carry at least
// the invoiced value.
type Verifier struct {
	backend Backend
}

func NewVerifier(backend Backend) *Verifier {
	return &Verifier{backend: backend}
}

func (v *Verifier) Verify(ctx context.Context, proof string, expect domain.PaymentExpectation) error {
	raw := common.FromHex(proof)
	if len(raw) != common.HashLength {
		return fmt.Errorf("%w: %q is not a transaction hash", domain.ErrProofRejected, proof)
	}
	hash := common.BytesToHash(raw)

	tx, pending, err := v.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%w: transaction %s not found", domain.ErrProofRejected, proof)
	}
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %v", domain.ErrBackend, proof, err)
	}
	if pending {
		return fmt.Errorf("%w: transaction %s not yet mined", domain.ErrProofRejected, proof)
	}

	if tx.To() == nil || *tx.To() != common.HexToAddress(expect.Destination) {
		return fmt.Errorf("%w: transaction %s pays the wrong destination", domain.ErrProofRejected, proof)
	}
	if want := ToWei(expect.Amount); tx.Value().Cmp(want) < 0 {
		return fmt.Errorf("%w: transaction %s pays %s wei, want %s", domain.ErrProofRejected, proof, tx.Value(), want)
	}

	receipt, err := v.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%w: no receipt for %s", domain.ErrProofRejected, proof)
	}
	if err != nil {
		return fmt.Errorf("%w: receipt %s: %v", domain.ErrBackend, proof, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrProofRejected, proof)
	}
	return nil
}
