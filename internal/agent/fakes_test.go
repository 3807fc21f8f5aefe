package agent

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/decision"
	"github.com/rl1809/restock-agent/internal/port"
)

const testSupplierWallet = "0x1111111111111111111111111111111111111111"

// fakeGateway plays the supplier: phase one answers with an invoice,
// phase two accepts any proof.
type fakeGateway struct {
	mu          sync.Mutex
	invoice     domain.Invoice
	requestErr  error
	shipsFree   bool
	rejectProof bool
	delay       time.Duration
	proofs      []string
	phaseOne    int
	inFlight    int
	maxInFlight int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{invoice: domain.Invoice{
		Amount:      decimal.RequireFromString("0.0001"),
		Currency:    "ETH",
		Destination: testSupplierWallet,
		InvoiceID:   "inv-test",
	}}
}

func (g *fakeGateway) RequestOrder(ctx context.Context, req domain.OrderRequest, proof, invoiceID string) (domain.OrderResponse, error) {
	g.mu.Lock()
	if g.requestErr != nil {
		g.mu.Unlock()
		return domain.OrderResponse{}, g.requestErr
	}
	if proof == "" {
		g.phaseOne++
		g.inFlight++
		if g.inFlight > g.maxInFlight {
			g.maxInFlight = g.inFlight
		}
		free, delay := g.shipsFree, g.delay
		inv := g.invoice
		g.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if free {
			g.done()
			return domain.OrderResponse{Success: true, Message: "free sample", TrackingID: "TRK-FREE"}, nil
		}
		return domain.OrderResponse{Invoice: &inv}, nil
	}

	defer g.done()
	if g.rejectProof {
		inv := g.invoice
		g.mu.Unlock()
		return domain.OrderResponse{Invoice: &inv}, nil
	}
	g.proofs = append(g.proofs, proof)
	g.mu.Unlock()
	return domain.OrderResponse{Success: true, Message: "shipped", TrackingID: "TRK-1"}, nil
}

func (g *fakeGateway) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
}

func (g *fakeGateway) ListOrders(ctx context.Context) (domain.LedgerSummary, error) {
	return domain.LedgerSummary{}, nil
}

func (g *fakeGateway) Proofs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.proofs...)
}

func (g *fakeGateway) MaxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

// fakeSettlement always produces the proof hash "0xABC" unless it fails.
type fakeSettlement struct {
	mu          sync.Mutex
	transferErr error
	confirmErr  error
	transfers   int
}

func (s *fakeSettlement) Transfer(ctx context.Context, destination string, amount decimal.Decimal) (domain.PendingTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers++
	if s.transferErr != nil {
		return domain.PendingTransfer{}, s.transferErr
	}
	return domain.PendingTransfer{Hash: "0xABC", To: destination, Amount: amount}, nil
}

func (s *fakeSettlement) AwaitConfirmation(ctx context.Context, tx domain.PendingTransfer, timeout time.Duration) (domain.Receipt, error) {
	if s.confirmErr != nil {
		return domain.Receipt{}, s.confirmErr
	}
	return domain.Receipt{Hash: tx.Hash, BlockNumber: 1}, nil
}

func (s *fakeSettlement) Transfers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers
}

type sliceCursor struct {
	suppliers []domain.Supplier
	current   domain.Supplier
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if len(c.suppliers) == 0 {
		return false
	}
	c.current, c.suppliers = c.suppliers[0], c.suppliers[1:]
	return true
}

func (c *sliceCursor) Supplier() domain.Supplier { return c.current }
func (c *sliceCursor) Err() error                { return nil }

type fakeDirectory struct {
	mu        sync.Mutex
	suppliers []domain.Supplier
	declines  map[string]bool
	discovers int
	placed    []string
}

func (d *fakeDirectory) Discover(ctx context.Context, item string, quantity int) port.SupplierCursor {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discovers++
	return &sliceCursor{suppliers: append([]domain.Supplier(nil), d.suppliers...)}
}

func (d *fakeDirectory) PlaceOrder(ctx context.Context, s domain.Supplier, req domain.OrderRequest) (domain.DirectOrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.declines[s.ID] {
		return domain.DirectOrderResult{}, domain.ErrOrderRejected
	}
	d.placed = append(d.placed, s.ID)
	return domain.DirectOrderResult{Success: true, ProtocolUsed: "direct"}, nil
}

func (d *fakeDirectory) Discovers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discovers
}

type advisorFunc func(ctx context.Context, in decision.Inputs) (domain.Recommendation, error)

func (f advisorFunc) Recommend(ctx context.Context, in decision.Inputs) (domain.Recommendation, error) {
	return f(ctx, in)
}

// recorder is an Observer for driving a Workflow without an Agent.
type recorder struct {
	mu          sync.Mutex
	transitions []Transition
	entries     []domain.ActivityEntry
}

func (r *recorder) Transitioned(run *Run, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) Logged(run *Run, e domain.ActivityEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Kind
	}
	return out
}
