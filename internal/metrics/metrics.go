package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Supplier holds the supplier service metrics. A nil *Supplier records nothing.
type Supplier struct {
	Requests      *prometheus.CounterVec
	Orders        prometheus.Counter
	Revenue       prometheus.Counter
	InvoicesIssue prometheus.Counter
	Latency       *prometheus.HistogramVec
}

// NewSupplier registers the supplier metrics on reg.
func NewSupplier(reg prometheus.Registerer) *Supplier {
	f := promauto.With(reg)
	return &Supplier{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supplier_requests_total",
				Help: "Order exchange requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"}, // outcome: payment_required, ok, conflict, invalid, error
		),
		Orders: f.NewCounter(prometheus.CounterOpts{
			Name: "supplier_orders_total",
			Help: "Orders recorded in the ledger",
		}),
		Revenue: f.NewCounter(prometheus.CounterOpts{
			Name: "supplier_revenue_eth_total",
			Help: "Sum of totalPaid over recorded orders",
		}),
		InvoicesIssue: f.NewCounter(prometheus.CounterOpts{
			Name: "supplier_invoices_issued_total",
			Help: "Payment-required responses returned",
		}),
		Latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supplier_request_duration_seconds",
				Help:    "Order exchange handling time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}
}

func (m *Supplier) ObserveRequest(endpoint, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint, outcome).Inc()
	m.Latency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

func (m *Supplier) InvoiceIssued() {
	if m == nil {
		return
	}
	m.InvoicesIssue.Inc()
}

func (m *Supplier) OrderRecorded(paid float64) {
	if m == nil {
		return
	}
	m.Orders.Inc()
	m.Revenue.Add(paid)
}

// Agent holds the restock agent metrics. A nil *Agent records nothing.
type Agent struct {
	Stock           prometheus.Gauge
	Sales           prometheus.Counter
	Runs            *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Restocked       prometheus.Counter
	Recommendations *prometheus.CounterVec
}

// NewAgent registers the agent metrics on reg.
func NewAgent(reg prometheus.Registerer) *Agent {
	f := promauto.With(reg)
	return &Agent{
		Stock: f.NewGauge(prometheus.GaugeOpts{
			Name: "agent_stock_level",
			Help: "Current stock of the watched item",
		}),
		Sales: f.NewCounter(prometheus.CounterOpts{
			Name: "agent_sales_total",
			Help: "Units sold by the sales simulator",
		}),
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_workflow_runs_total",
				Help: "Finished restock workflow runs by final state",
			},
			[]string{"state"},
		),
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_workflow_transitions_total",
				Help: "Workflow state entries",
			},
			[]string{"state"},
		),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_workflow_duration_seconds",
			Help:    "Time from Deciding to a terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		Restocked: f.NewCounter(prometheus.CounterOpts{
			Name: "agent_restocked_units_total",
			Help: "Units added by completed workflows",
		}),
		Recommendations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_recommendations_total",
				Help: "Decision cycles by advisor source",
			},
			[]string{"source"},
		),
	}
}

func (m *Agent) SetStock(level int) {
	if m == nil {
		return
	}
	m.Stock.Set(float64(level))
}

func (m *Agent) Sold(units int) {
	if m == nil {
		return
	}
	m.Sales.Add(float64(units))
}

func (m *Agent) Transition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Agent) RunFinished(state string, took time.Duration, restocked int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state).Inc()
	m.RunDuration.Observe(took.Seconds())
	if restocked > 0 {
		m.Restocked.Add(float64(restocked))
	}
}

func (m *Agent) Recommended(source string) {
	if m == nil {
		return
	}
	m.Recommendations.WithLabelValues(source).Inc()
}
