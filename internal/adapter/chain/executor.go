package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

const (
	DefaultGasLimit     = 21000
	DefaultPollInterval = 2 * time.Second
	weiDecimals         = 18
)

// Backend is the slice of an Ethereum JSON-RPC client the executor needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

type DialFunc func(ctx context.Context, endpoint string) (Backend, error)

type Config struct {
	PrivateKey   string
	Endpoint     string
	GasLimit     uint64
	PollInterval time.Duration
}

type Option func(*Executor)

// WithDialer replaces ethclient.DialContext.
func WithDialer(dial DialFunc) Option {
	return func(e *Executor) { e.dial = dial }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// Executor owns the agent's signing key and chain connection. Only the
// active workflow uses it, so there is at most one transfer in flight.
type Executor struct {
	cfg    Config
	key    *ecdsa.PrivateKey
	from   common.Address
	keyErr error
	dial   DialFunc
	logger *slog.Logger

	mu      sync.Mutex
	backend Backend
	chainID *big.Int
}

// NewExecutor never fails on missing credentials; the agent keeps running
// and each settlement attempt reports ErrConfigurationMissing instead.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	e := &Executor{
		cfg:    cfg,
		logger: slog.Default(),
		dial: func(ctx context.Context, endpoint string) (Backend, error) {
			return ethclient.DialContext(ctx, endpoint)
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	raw := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	switch {
	case raw == "":
		e.keyErr = fmt.Errorf("%w: agent private key", domain.ErrConfigurationMissing)
	default:
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			e.keyErr = fmt.Errorf("%w: agent private key is malformed", domain.ErrConfigurationMissing)
			break
		}
		e.key = key
		e.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return e
}

// Address is the agent's wallet, zero when no key is configured.
func (e *Executor) Address() common.Address {
	return e.from
}

// Connect dials the configured endpoint and identifies the chain.
func (e *Executor) Connect(ctx context.Context) error {
	_, _, err := e.connect(ctx)
	return err
}

func (e *Executor) connect(ctx context.Context) (Backend, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend != nil {
		return e.backend, e.chainID, nil
	}
	if e.cfg.Endpoint == "" {
		return nil, nil, &domain.SettlementError{Op: "connect",
			Err: fmt.Errorf("%w: rpc endpoint", domain.ErrConfigurationMissing)}
	}

	backend, err := e.dial(ctx, e.cfg.Endpoint)
	if err != nil {
		return nil, nil, &domain.SettlementError{Op: "connect",
			Err: fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)}
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, nil, &domain.SettlementError{Op: "connect",
			Err: fmt.Errorf("%w: chain id: %v", domain.ErrNetworkUnreachable, err)}
	}

	e.backend, e.chainID = backend, chainID
	e.logger.Info("connected to chain", "endpoint", e.cfg.Endpoint, "chain_id", chainID.String(), "wallet", e.from.Hex())
	return backend, chainID, nil
}

func (e *Executor) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	backend, _, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: invalid address %q", domain.ErrBackend, address)
	}
	balance, err := backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, &domain.SettlementError{Op: "balance", Err: fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)}
	}
	return balance, nil
}

// Transfer signs and submits one value transfer. It is never retried: a
// failed send may still have reached the mempool.
func (e *Executor) Transfer(ctx context.Context, destination string, amount decimal.Decimal) (domain.PendingTransfer, error) {
	if e.keyErr != nil {
		return domain.PendingTransfer{}, e.keyErr
	}
	if !common.IsHexAddress(destination) {
		return domain.PendingTransfer{}, fmt.Errorf("%w: invalid destination %q", domain.ErrBackend, destination)
	}
	value := ToWei(amount)
	if value.Sign() <= 0 {
		return domain.PendingTransfer{}, fmt.Errorf("%w: non-positive amount %s", domain.ErrBackend, amount)
	}

	backend, chainID, err := e.connect(ctx)
	if err != nil {
		return domain.PendingTransfer{}, err
	}

	balance, err := backend.BalanceAt(ctx, e.from, nil)
	if err != nil {
		return domain.PendingTransfer{}, &domain.SettlementError{Op: "transfer",
			Err: fmt.Errorf("%w: balance: %v", domain.ErrNetworkUnreachable, err)}
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return domain.PendingTransfer{}, &domain.SettlementError{Op: "transfer",
			Err: fmt.Errorf("%w: gas price: %v", domain.ErrNetworkUnreachable, err)}
	}

	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(e.cfg.GasLimit))
	cost.Add(cost, value)
	if balance.Sign() == 0 || balance.Cmp(cost) < 0 {
		return domain.PendingTransfer{}, &domain.SettlementError{Op: "transfer",
			Err: fmt.Errorf("%w: balance %s wei, need %s wei", domain.ErrInsufficientFunds, balance, cost)}
	}

	nonce, err := backend.PendingNonceAt(ctx, e.from)
	if err != nil {
		return domain.PendingTransfer{}, &domain.SettlementError{Op: "transfer",
			Err: fmt.Errorf("%w: nonce: %v", domain.ErrNetworkUnreachable, err)}
	}

	to := common.HexToAddress(destination)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      e.cfg.GasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.key)
	if err != nil {
		return domain.PendingTransfer{}, &domain.SettlementError{Op: "sign",
			Err: fmt.Errorf("%w: %v", domain.ErrTransactionRejected, err)}
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return domain.PendingTransfer{}, &domain.SettlementError{Op: "send",
			Err: fmt.Errorf("%w: %v", domain.ErrTransactionRejected, err)}
	}

	pending := domain.PendingTransfer{
		Hash:        signed.Hash().Hex(),
		From:        e.from.Hex(),
		To:          to.Hex(),
		Amount:      amount,
		Nonce:       nonce,
		SubmittedAt: time.Now(),
	}
	e.logger.Info("transfer submitted", "hash", pending.Hash, "to", pending.To, "amount", amount.String())
	return pending, nil
}

// AwaitConfirmation polls for the receipt until it lands or timeout elapses.
func (e *Executor) AwaitConfirmation(ctx context.Context, tx domain.PendingTransfer, timeout time.Duration) (domain.Receipt, error) {
	backend, _, err := e.connect(ctx)
	if err != nil {
		return domain.Receipt{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := common.HexToHash(tx.Hash)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return domain.Receipt{}, &domain.SettlementError{Op: "confirm",
					Err: fmt.Errorf("%w: transaction %s reverted", domain.ErrTransactionRejected, tx.Hash)}
			}
			var block uint64
			if receipt.BlockNumber != nil {
				block = receipt.BlockNumber.Uint64()
			}
			return domain.Receipt{
				Hash:        tx.Hash,
				BlockNumber: block,
				GasUsed:     receipt.GasUsed,
				ConfirmedAt: time.Now(),
			}, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			e.logger.Warn("receipt lookup failed, retrying", "hash", tx.Hash, "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return domain.Receipt{}, &domain.SettlementError{Op: "confirm", Err: ctx.Err()}
			}
			return domain.Receipt{}, &domain.SettlementError{Op: "confirm",
				Err: fmt.Errorf("%w: %s after %s", domain.ErrConfirmationTimeout, tx.Hash, timeout)}
		case <-ticker.C:
		}
	}
}

// ToWei converts an ETH amount to wei, truncating beyond 18 decimals.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(weiDecimals).BigInt()
}

// FromWei converts wei to an ETH amount.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -weiDecimals)
}
