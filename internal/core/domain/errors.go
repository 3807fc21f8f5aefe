package domain

import "errors"

// Agent-side failure classes.
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrNetworkUnreachable   = errors.New("network unreachable")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrTransactionRejected  = errors.New("transaction rejected")
	ErrConfirmationTimeout  = errors.New("confirmation timed out")
	ErrBackend              = errors.New("backend error")
	ErrOrderRejected        = errors.New("order rejected")
	ErrNoSuppliers          = errors.New("no alternate suppliers")
)

// Supplier-side failure classes.
var (
	ErrInvalidOrder    = errors.New("invalid order")
	ErrPaymentRequired = errors.New("payment required")
	ErrDuplicateProof  = errors.New("payment proof already used")
	ErrProofRejected   = errors.New("payment proof rejected")
	ErrDuplicateOrder  = errors.New("order already recorded")
)

// SettlementError marks a failure raised while moving value on chain.
type SettlementError struct {
	Op  string
	Err error
}

func (e *SettlementError) Error() string {
	return "settlement " + e.Op + ": " + e.Err.Error()
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// IsSettlementFailure reports whether err should send the workflow to
// fallback discovery. Unreachable networks count only when the settlement
// stage raised them; missing configuration never does.
func IsSettlementFailure(err error) bool {
	if err == nil || errors.Is(err, ErrConfigurationMissing) {
		return false
	}
	if errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrTransactionRejected) ||
		errors.Is(err, ErrConfirmationTimeout) {
		return true
	}
	var se *SettlementError
	return errors.As(err, &se) && errors.Is(err, ErrNetworkUnreachable)
}
