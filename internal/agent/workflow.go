package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/decision"
	"github.com/rl1809/restock-agent/internal/metrics"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	DefaultExecuteThreshold = 10
	DefaultConfirmTimeout   = 2 * time.Minute
	DefaultSettlementDelay  = 2 * time.Second
)

// Activity kinds.
const (
	KindInfo     = "info"
	KindAdvisory = "advisory"
	KindPayment  = "payment"
	KindSuccess  = "success"
	KindError    = "error"
	KindFallback = "fallback"
)

type WorkflowConfig struct {
	Item             string
	ExecuteThreshold int
	ConfirmTimeout   time.Duration
	SettlementDelay  time.Duration
}

// Workflow drives one restock attempt through the payment-challenge
// exchange. It never touches stock; the outcome's Fulfilled quantity is
// applied by the agent loop.
type Workflow struct {
	cfg        WorkflowConfig
	advisor    decision.Advisor
	gateway    port.SupplierGateway
	settlement port.SettlementExecutor
	directory  port.SupplierDirectory
	metrics    *metrics.Agent
	logger     *slog.Logger
}

type WorkflowOption func(*Workflow)

func WithDirectory(d port.SupplierDirectory) WorkflowOption {
	return func(w *Workflow) { w.directory = d }
}

func WithWorkflowMetrics(m *metrics.Agent) WorkflowOption {
	return func(w *Workflow) { w.metrics = m }
}

func WithWorkflowLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

func NewWorkflow(cfg WorkflowConfig, advisor decision.Advisor, gateway port.SupplierGateway, settlement port.SettlementExecutor, opts ...WorkflowOption) *Workflow {
	if cfg.ExecuteThreshold <= 0 {
		cfg.ExecuteThreshold = DefaultExecuteThreshold
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.SettlementDelay < 0 {
		cfg.SettlementDelay = 0
	}
	w := &Workflow{
		cfg:        cfg,
		advisor:    advisor,
		gateway:    gateway,
		settlement: settlement,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Execute runs the workflow to a terminal state. A forced run (manual
// trigger) skips the stock thresholds but still needs a positive quantity.
func (w *Workflow) Execute(ctx context.Context, run *Run, in decision.Inputs, forced bool) Outcome {
	w.enter(run, StateDeciding, fmt.Sprintf("stock %d", in.Stock))

	rec, err := w.advisor.Recommend(ctx, in)
	if err != nil {
		return w.fail(ctx, run, nil, 0, fmt.Errorf("decide: %w", err))
	}
	w.metrics.Recommended(rec.Source)
	out := Outcome{Recommendation: &rec}

	if !forced {
		if !rec.ShouldRestock {
			w.enter(run, StateIdle, "no restock needed")
			out.State = StateIdle
			return out
		}
		if in.Stock >= w.cfg.ExecuteThreshold {
			run.log(KindAdvisory, fmt.Sprintf("Advisory: restock %d %s soon (urgency %d/10). %s",
				rec.Quantity, w.cfg.Item, rec.Urgency, rec.Reason), map[string]any{"urgency": rec.Urgency})
			w.enter(run, StateIdle, "advisory only")
			out.State = StateIdle
			return out
		}
	}
	if rec.Quantity <= 0 {
		w.enter(run, StateIdle, "nothing to order")
		out.State = StateIdle
		return out
	}

	run.log(KindInfo, fmt.Sprintf("Stock low (%d). Agent ordering %d %s, urgency %d/10.",
		in.Stock, rec.Quantity, w.cfg.Item, rec.Urgency), nil)

	req := domain.OrderRequest{Item: w.cfg.Item, Quantity: rec.Quantity}

	w.enter(run, StateRequestingOrder, "")
	resp, err := w.gateway.RequestOrder(ctx, req, "", "")
	if err != nil {
		return w.fail(ctx, run, &rec, 0, fmt.Errorf("request order: %w", err))
	}
	if resp.Invoice == nil {
		if resp.Success {
			// Supplier shipped without asking for payment.
			return w.complete(run, out, req.Quantity, resp.TrackingID, "", resp.Message)
		}
		return w.fail(ctx, run, &rec, 0, fmt.Errorf("%w: no invoice in response", domain.ErrBackend))
	}

	inv := *resp.Invoice
	w.enter(run, StateAwaitingPayment, "invoice "+inv.InvoiceID)
	if err := inv.Validate(); err != nil {
		return w.fail(ctx, run, &rec, 0, err)
	}
	run.log(KindPayment, fmt.Sprintf("Payment required. Sending %s %s to %s.",
		inv.Amount.String(), inv.Currency, inv.Destination), map[string]any{"invoiceId": inv.InvoiceID})

	w.enter(run, StateExecutingSettlement, "")
	pending, err := w.settlement.Transfer(ctx, inv.Destination, inv.Amount)
	if err != nil {
		return w.fail(ctx, run, &rec, rec.Quantity, err)
	}

	w.enter(run, StateAwaitingConfirmation, pending.Hash)
	run.log(KindPayment, "Transaction sent. Waiting for confirmation...", map[string]any{"hash": pending.Hash})
	if _, err := w.settlement.AwaitConfirmation(ctx, pending, w.cfg.ConfirmTimeout); err != nil {
		return w.fail(ctx, run, &rec, rec.Quantity, err)
	}

	w.enter(run, StateSubmittingProof, pending.Hash)
	resp, err = w.gateway.RequestOrder(ctx, req, pending.Hash, inv.InvoiceID)
	if err != nil {
		return w.fail(ctx, run, &rec, 0, fmt.Errorf("submit proof: %w", err))
	}
	if resp.Invoice != nil || !resp.Success {
		return w.fail(ctx, run, &rec, 0, fmt.Errorf("%w: proof %s not accepted", domain.ErrOrderRejected, pending.Hash))
	}

	out.Proof = pending.Hash
	return w.complete(run, out, req.Quantity, resp.TrackingID, pending.Hash, resp.Message)
}

func (w *Workflow) enter(run *Run, s State, note string) {
	run.transition(s, note)
	w.metrics.Transition(s.String())
}

func (w *Workflow) complete(run *Run, out Outcome, quantity int, trackingID, proof, message string) Outcome {
	w.enter(run, StateCompleted, trackingID)
	run.log(KindSuccess, "Restock complete: "+message, map[string]any{"quantity": quantity, "proof": proof})
	out.State = StateCompleted
	out.Fulfilled = quantity
	out.TrackingID = trackingID
	out.Proof = proof
	return out
}

// fail moves the run to Failed and, for settlement-class errors, on to
// fallback discovery for quantity units.
func (w *Workflow) fail(ctx context.Context, run *Run, rec *domain.Recommendation, quantity int, err error) Outcome {
	w.enter(run, StateFailed, err.Error())
	run.log(KindError, "Restock failed: "+err.Error(), nil)
	w.logger.Warn("restock workflow failed", "run_id", run.ID, "error", err)

	out := Outcome{State: StateFailed, Recommendation: rec, Err: err}
	if quantity <= 0 || !domain.IsSettlementFailure(err) {
		return out
	}
	return w.fallback(ctx, run, out, domain.OrderRequest{Item: w.cfg.Item, Quantity: quantity})
}

func (w *Workflow) fallback(ctx context.Context, run *Run, out Outcome, req domain.OrderRequest) Outcome {
	w.enter(run, StateFallbackDiscovery, "")
	run.log(KindFallback, "Settlement failed. Searching for alternate suppliers...", nil)

	if w.directory != nil {
		cursor := w.directory.Discover(ctx, req.Item, req.Quantity)
		for cursor.Next(ctx) {
			s := cursor.Supplier()
			result, err := w.directory.PlaceOrder(ctx, s, req)
			if err != nil {
				w.logger.Warn("alternate supplier declined", "supplier", s.Name, "error", err)
				continue
			}

			run.log(KindFallback, fmt.Sprintf("Ordered %d %s from %s via %s.",
				req.Quantity, req.Item, s.Name, result.ProtocolUsed), map[string]any{"supplier": s.ID, "price": s.Price})
			if err := sleep(ctx, w.cfg.SettlementDelay); err != nil {
				return w.settle(run, out, fmt.Errorf("fallback settlement: %w", err))
			}
			out.Err = nil
			return w.complete(run, out, req.Quantity, "", "", "delivered by "+s.Name)
		}
		if err := cursor.Err(); err != nil {
			w.logger.Warn("supplier discovery stopped", "error", err)
		}
	}

	return w.settle(run, out, fmt.Errorf("%w: %w", domain.ErrNoSuppliers, out.Err))
}

func (w *Workflow) settle(run *Run, out Outcome, err error) Outcome {
	note := err.Error()
	if errors.Is(err, domain.ErrNoSuppliers) {
		note = "no suppliers"
		run.log(KindError, "No alternate suppliers found. Stock unchanged.", nil)
	}
	w.enter(run, StateFailed, note)
	out.State = StateFailed
	out.Err = err
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
