package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

// Resilient consults a primary advisor and falls back to the local
// heuristic on any error, skipping the primary while its breaker is open.
type Resilient struct {
	primary  Advisor
	fallback Local
	breaker  *breaker
	logger   *slog.Logger
}

type ResilientOption func(*Resilient)

func WithBreaker(maxFailures int, cooldown time.Duration) ResilientOption {
	return func(r *Resilient) { r.breaker = newBreaker(maxFailures, cooldown) }
}

func WithFallback(l Local) ResilientOption {
	return func(r *Resilient) { r.fallback = l }
}

func WithLogger(l *slog.Logger) ResilientOption {
	return func(r *Resilient) { r.logger = l }
}

// NewResilient wraps primary. A nil primary always uses the local heuristic.
func NewResilient(primary Advisor, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		primary:  primary,
		fallback: NewLocal(),
		breaker:  newBreaker(3, 30*time.Second),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Recommend(ctx context.Context, in Inputs) (domain.Recommendation, error) {
	if r.primary == nil {
		return r.fallback.recommend(in), nil
	}

	if err := r.breaker.allow(); err != nil {
		return r.fallback.recommend(in), nil
	}

	rec, err := r.primary.Recommend(ctx, in)
	r.breaker.record(err == nil)
	if err != nil {
		r.logger.Warn("advisor unavailable, using local heuristic",
			"error", err, "breaker", r.breaker.State().String())
		return r.fallback.recommend(in), nil
	}
	return rec, nil
}

// BreakerState exposes the primary advisor's breaker for the dashboard.
func (r *Resilient) BreakerState() BreakerState {
	return r.breaker.State()
}
