package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	defaultInvoiceTTL = 15 * time.Minute
	negotiationWindow = 300 // seconds
)

type LedgerConfig struct {
	Destination string
	Currency    string
	Chain       string
	InvoiceTTL  time.Duration
	Pricing     Pricing

	// RejectReplayedProofs refuses a proof that already paid for an order.
	// Off by default: any non-empty proof is accepted, reused or not.
	RejectReplayedProofs bool
}

type Option func(*LedgerService)

func WithVerifier(v port.ProofVerifier) Option {
	return func(s *LedgerService) { s.verifier = v }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

// LedgerService is the supplier side of the payment-challenge exchange.
type LedgerService struct {
	cache    port.CacheRepository
	db       port.DatabaseRepository
	verifier port.ProofVerifier
	cfg      LedgerConfig
	now      func() time.Time
	logger   *slog.Logger
}

func NewLedgerService(cache port.CacheRepository, db port.DatabaseRepository, cfg LedgerConfig, opts ...Option) *LedgerService {
	if cfg.InvoiceTTL <= 0 {
		cfg.InvoiceTTL = defaultInvoiceTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = "ETH"
	}
	s := &LedgerService{
		cache:    cache,
		db:       db,
		verifier: PresenceVerifier{},
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote prices an order at the current time.
func (s *LedgerService) Quote(quantity int) decimal.Decimal {
	return s.cfg.Pricing.Price(quantity, s.now())
}

// IssueInvoice answers an order request that carries no proof. Nothing is
// recorded in the ledger; the invoice is only remembered so a later proof
// can be charged at the price quoted here.
func (s *LedgerService) IssueInvoice(ctx context.Context, req domain.OrderRequest) (domain.Invoice, error) {
	if err := req.Validate(); err != nil {
		return domain.Invoice{}, err
	}

	now := s.now()
	inv := domain.Invoice{
		Amount:      s.cfg.Pricing.Price(req.Quantity, now),
		Currency:    s.cfg.Currency,
		Chain:       s.cfg.Chain,
		Destination: s.cfg.Destination,
		InvoiceID:   "inv-" + uuid.NewString(),
		Item:        req.Item,
		Quantity:    req.Quantity,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.InvoiceTTL),
	}

	if err := s.cache.SaveInvoice(ctx, inv, s.cfg.InvoiceTTL); err != nil {
		return domain.Invoice{}, fmt.Errorf("save invoice: %w", err)
	}

	s.logger.Info("payment required", "item", req.Item, "quantity", req.Quantity,
		"amount", inv.Amount.String(), "invoice_id", inv.InvoiceID)
	return inv, nil
}

// Fulfill records an order for a request that carries a payment proof.
func (s *LedgerService) Fulfill(ctx context.Context, req domain.OrderRequest, proof, invoiceID string) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return domain.Order{}, domain.ErrPaymentRequired
	}

	price, err := s.priceFor(ctx, req, invoiceID)
	if err != nil {
		return domain.Order{}, err
	}

	expect := domain.PaymentExpectation{Destination: s.cfg.Destination, Amount: price}
	if err := s.verifier.Verify(ctx, proof, expect); err != nil {
		return domain.Order{}, err
	}

	if s.cfg.RejectReplayedProofs {
		ok, err := s.cache.ClaimProof(ctx, proof)
		if err != nil {
			return domain.Order{}, fmt.Errorf("claim proof: %w", err)
		}
		if !ok {
			return domain.Order{}, domain.ErrDuplicateProof
		}
	}

	order := domain.Order{
		ID:             uuid.NewString(),
		Timestamp:      s.now(),
		Item:           req.Item,
		Quantity:       req.Quantity,
		TotalPaid:      price,
		ProofReference: proof,
		Status:         domain.OrderStatusPaid,
		InvoiceID:      invoiceID,
		TrackingID:     "TRK-" + strings.ToUpper(uuid.NewString()[:8]),
	}

	if err := s.db.AppendOrder(ctx, order); err != nil {
		// Rollback: the proof stays spendable if nothing was recorded
		if s.cfg.RejectReplayedProofs {
			if rbErr := s.cache.ReleaseProof(ctx, proof); rbErr != nil {
				s.logger.Error("CRITICAL: proof release failed", "proof", proof, "error", rbErr)
			}
		}
		return domain.Order{}, fmt.Errorf("append order: %w", err)
	}

	s.logger.Info("order shipped", "order_id", order.ID, "item", order.Item,
		"quantity", order.Quantity, "proof", proof, "paid", price.String())
	return order, nil
}

// priceFor binds the charge to the invoice's quoted price when the client
// names a live invoice for the same item and quantity.
func (s *LedgerService) priceFor(ctx context.Context, req domain.OrderRequest, invoiceID string) (decimal.Decimal, error) {
	if invoiceID != "" {
		inv, err := s.cache.GetInvoice(ctx, invoiceID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load invoice: %w", err)
		}
		if inv != nil && inv.Matches(req) && !inv.Expired(s.now()) {
			return inv.Amount, nil
		}
		s.logger.Warn("invoice not bound, repricing", "invoice_id", invoiceID)
	}
	return s.Quote(req.Quantity), nil
}

// Summary returns every order and the revenue they add up to.
func (s *LedgerService) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	orders, err := s.db.ListOrders(ctx)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("list orders: %w", err)
	}
	return domain.Summarize(orders), nil
}

// Negotiate accepts a proposal at or above list price and otherwise meets
// the buyer halfway.
func (s *LedgerService) Negotiate(req domain.NegotiationRequest) (domain.NegotiationResponse, error) {
	if req.Quantity <= 0 {
		return domain.NegotiationResponse{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)
	}
	proposed, err := decimal.NewFromString(req.ProposedPrice)
	if err != nil || proposed.IsNegative() {
		return domain.NegotiationResponse{}, fmt.Errorf("%w: bad proposed price %q", domain.ErrInvalidOrder, req.ProposedPrice)
	}

	list := s.Quote(req.Quantity)
	counter := proposed
	if proposed.LessThan(list) {
		counter = list.Add(proposed).Div(decimal.NewFromInt(2)).Round(s.cfg.Pricing.Precision)
	}
	return domain.NegotiationResponse{
		CounterOffer: counter.StringFixed(s.cfg.Pricing.Precision),
		ValidFor:     negotiationWindow,
	}, nil
}
