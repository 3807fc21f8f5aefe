package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/decision"
	"github.com/rl1809/restock-agent/internal/metrics"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	DefaultWatchThreshold = 15
	DefaultSaleInterval   = 1500 * time.Millisecond
	runHistorySize        = 20
)

type Config struct {
	Item           string
	InitialStock   int
	WatchThreshold int
	SaleInterval   time.Duration // zero disables simulated sales
	SaleUnits      int
	Market         decision.Market
}

// Snapshot is the dashboard view of the agent.
type Snapshot struct {
	Item           string                 `json:"item"`
	Stock          int                    `json:"stock"`
	State          State                  `json:"state"`
	Active         bool                   `json:"active"`
	RunID          string                 `json:"runId,omitempty"`
	SalesPerHour   int                    `json:"salesPerHour"`
	SalesToday     int                    `json:"salesToday"`
	Recommendation *domain.Recommendation `json:"recommendation,omitempty"`
	LastError      string                 `json:"lastError,omitempty"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

type saleRequest struct {
	units int
	done  chan struct{}
}

type runResult struct {
	token   *Token
	run     *Run
	outcome Outcome
}

type Option func(*Agent)

func WithMetrics(m *metrics.Agent) Option {
	return func(a *Agent) { a.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

func WithActivityCapacity(n int) Option {
	return func(a *Agent) { a.activity = domain.NewActivityLog(n) }
}

// Agent owns the stock level. Its event loop is the only writer: sales,
// manual triggers and workflow results are all serialized through Run.
type Agent struct {
	cfg       Config
	stock     port.StockRepository
	workflow  *Workflow
	scheduler *Scheduler
	activity  *domain.ActivityLog
	metrics   *metrics.Agent
	logger    *slog.Logger
	now       func() time.Time

	sales    chan saleRequest
	triggers chan struct{}
	results  chan runResult

	// loop-owned
	window  domain.SalesWindow
	level   int
	runCtx  context.Context
	running sync.WaitGroup

	mu   sync.RWMutex
	snap Snapshot
	runs []RunSummary

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

func New(cfg Config, stock port.StockRepository, workflow *Workflow, opts ...Option) *Agent {
	if cfg.WatchThreshold <= 0 {
		cfg.WatchThreshold = DefaultWatchThreshold
	}
	if cfg.SaleUnits <= 0 {
		cfg.SaleUnits = 1
	}
	a := &Agent{
		cfg:       cfg,
		stock:     stock,
		workflow:  workflow,
		scheduler: NewScheduler(),
		activity:  domain.NewActivityLog(domain.DefaultActivityCapacity),
		logger:    slog.Default(),
		now:       time.Now,
		sales:     make(chan saleRequest),
		triggers:  make(chan struct{}, 1),
		results:   make(chan runResult),
		subs:      make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.snap = Snapshot{Item: cfg.Item, Stock: cfg.InitialStock, State: StateIdle}
	return a
}

// Run seeds the stock level and processes events until ctx is done.
// In-flight workflows are cancelled and awaited before it returns.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.stock.SetStock(ctx, a.cfg.Item, a.cfg.InitialStock); err != nil {
		return fmt.Errorf("seed stock: %w", err)
	}
	a.level = a.cfg.InitialStock
	a.metrics.SetStock(a.level)
	a.publish(func(s *Snapshot) { s.Stock = a.level })

	runCtx, cancelRuns := context.WithCancel(ctx)
	a.runCtx = runCtx
	defer func() {
		cancelRuns()
		a.running.Wait()
	}()

	var tick <-chan time.Time
	if a.cfg.SaleInterval > 0 {
		ticker := time.NewTicker(a.cfg.SaleInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	a.logger.Info("agent started", "item", a.cfg.Item, "stock", a.level,
		"watch_threshold", a.cfg.WatchThreshold)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return nil
		case <-tick:
			a.sell(ctx, a.cfg.SaleUnits)
		case req := <-a.sales:
			a.sell(ctx, req.units)
			close(req.done)
		case <-a.triggers:
			a.start(TriggerManual)
		case res := <-a.results:
			a.finish(ctx, res)
		}
	}
}

// Sell records units sold and waits until the loop has applied them.
func (a *Agent) Sell(ctx context.Context, units int) error {
	req := saleRequest{units: units, done: make(chan struct{})}
	select {
	case a.sales <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger asks for a restock regardless of thresholds. Triggers that arrive
// while one is pending collapse into it.
func (a *Agent) Trigger() {
	select {
	case a.triggers <- struct{}{}:
	default:
	}
}

func (a *Agent) sell(ctx context.Context, units int) {
	sold, err := a.stock.DecrementStock(ctx, a.cfg.Item, units)
	if err != nil {
		a.logger.Error("sale failed", "error", err)
		return
	}
	if sold == 0 {
		return
	}

	now := a.now()
	for i := 0; i < sold; i++ {
		a.window.Record(now)
	}
	a.metrics.Sold(sold)

	level, err := a.stock.Level(ctx, a.cfg.Item)
	if err != nil {
		a.logger.Error("read stock failed", "error", err)
		return
	}
	a.level = level
	a.metrics.SetStock(level)
	a.publish(func(s *Snapshot) {
		s.Stock = level
		s.SalesPerHour = a.window.PerHour(now)
		s.SalesToday = a.window.TotalToday(now)
	})

	if level < a.cfg.WatchThreshold {
		a.start(TriggerStock)
	}
}

// start launches a workflow unless one is already active.
func (a *Agent) start(trigger string) {
	token, ok := a.scheduler.TryAcquire(trigger)
	if !ok {
		if trigger == TriggerManual {
			a.activity.Add(domain.ActivityEntry{At: a.now(), Kind: KindInfo, Message: "Restock already in progress."})
		}
		return
	}

	run := newRun(token, a.level, a, a.now)
	in := a.inputs()
	forced := trigger == TriggerManual
	if forced {
		a.activity.Add(domain.ActivityEntry{At: a.now(), Kind: KindInfo, Message: "Manual restock requested."})
	}
	a.publish(func(s *Snapshot) {
		s.Active = true
		s.RunID = run.ID
	})

	ctx := a.runCtx
	a.running.Add(1)
	go func() {
		defer a.running.Done()
		out := a.workflow.Execute(ctx, run, in, forced)
		select {
		case a.results <- runResult{token: token, run: run, outcome: out}:
		case <-ctx.Done():
			a.scheduler.Release(token)
		}
	}()
}

func (a *Agent) finish(ctx context.Context, res runResult) {
	out := res.outcome
	if out.Fulfilled > 0 {
		level, err := a.stock.IncrementStock(ctx, a.cfg.Item, out.Fulfilled)
		if err != nil {
			a.logger.Error("apply restock failed", "run_id", res.run.ID, "error", err)
		} else {
			a.level = level
			a.metrics.SetStock(level)
			a.activity.Add(domain.ActivityEntry{At: a.now(), Kind: KindSuccess,
				Message: fmt.Sprintf("Stock replenished: +%d, now %d.", out.Fulfilled, level)})
		}
	}

	finished := a.now()
	a.metrics.RunFinished(out.State.String(), finished.Sub(res.run.StartedAt), out.Fulfilled)

	summary := RunSummary{
		ID:         res.run.ID,
		Trigger:    res.run.Trigger,
		StartStock: res.run.StartStock,
		StartedAt:  res.run.StartedAt,
		FinishedAt: finished,
		Final:      out.State,
		Fulfilled:  out.Fulfilled,
		Proof:      out.Proof,
		History:    res.run.History,
	}
	if out.Err != nil {
		summary.Error = out.Err.Error()
	}

	a.scheduler.Release(res.token)

	a.mu.Lock()
	a.runs = append(a.runs, summary)
	if len(a.runs) > runHistorySize {
		a.runs = a.runs[len(a.runs)-runHistorySize:]
	}
	a.mu.Unlock()

	a.publish(func(s *Snapshot) {
		s.Stock = a.level
		s.State = StateIdle
		s.Active = false
		s.RunID = ""
		s.LastError = summary.Error
		if out.State == StateCompleted {
			s.Recommendation = nil
		} else if out.Recommendation != nil {
			s.Recommendation = out.Recommendation
		}
	})

	// Sales that landed while the run was active were not evaluated.
	if a.level < a.cfg.WatchThreshold && a.level != res.run.StartStock {
		a.start(TriggerStock)
	}
}

func (a *Agent) inputs() decision.Inputs {
	now := a.now()
	return decision.Inputs{
		Item:  a.cfg.Item,
		Stock: a.level,
		Sales: decision.Telemetry{
			SalesPerHour:    a.window.PerHour(now),
			TotalSalesToday: a.window.TotalToday(now),
			HourOfDay:       now.Hour(),
		},
		Market: a.cfg.Market,
	}
}

// Transitioned implements Observer.
func (a *Agent) Transitioned(run *Run, t Transition) {
	a.logger.Debug("workflow transition", "run_id", run.ID, "from", t.From.String(), "to", t.To.String(), "note", t.Note)
	a.publish(func(s *Snapshot) {
		if s.RunID == run.ID {
			s.State = t.To
		}
	})
}

// Logged implements Observer.
func (a *Agent) Logged(run *Run, e domain.ActivityEntry) {
	a.activity.Add(e)
	a.publish(nil)
}

func (a *Agent) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

func (a *Agent) Activity() []domain.ActivityEntry {
	return a.activity.Entries()
}

// Runs returns finished runs, oldest first.
func (a *Agent) Runs() []RunSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]RunSummary, len(a.runs))
	copy(out, a.runs)
	return out
}

func (a *Agent) Active() bool {
	return a.scheduler.Active()
}

// Subscribe streams snapshots until cancel is called. Slow subscribers miss
// intermediate snapshots rather than block the agent.
func (a *Agent) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	a.subMu.Lock()
	a.subs[ch] = struct{}{}
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, ch)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *Agent) publish(update func(*Snapshot)) {
	a.mu.Lock()
	if update != nil {
		update(&a.snap)
	}
	a.snap.UpdatedAt = a.now()
	snap := a.snap
	a.mu.Unlock()

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for ch := range a.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
