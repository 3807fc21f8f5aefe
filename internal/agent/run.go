package agent

import (
	"time"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

const (
	TriggerStock  = "stock"
	TriggerManual = "manual"
)

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Observer receives a run's transitions and activity as they happen. Calls
// come from the workflow goroutine.
type Observer interface {
	Transitioned(run *Run, t Transition)
	Logged(run *Run, e domain.ActivityEntry)
}

// Run is one workflow execution. Only the workflow goroutine mutates it
// until its outcome has been delivered.
type Run struct {
	ID         string
	Trigger    string
	StartStock int
	StartedAt  time.Time
	State      State
	History    []Transition

	observer Observer
	now      func() time.Time
}

func newRun(token *Token, stock int, observer Observer, now func() time.Time) *Run {
	return &Run{
		ID:         token.RunID,
		Trigger:    token.Trigger,
		StartStock: stock,
		StartedAt:  now(),
		State:      StateIdle,
		observer:   observer,
		now:        now,
	}
}

func (r *Run) transition(to State, note string) {
	t := Transition{From: r.State, To: to, At: r.now(), Note: note}
	r.State = to
	r.History = append(r.History, t)
	if r.observer != nil {
		r.observer.Transitioned(r, t)
	}
}

func (r *Run) log(kind, message string, data map[string]any) {
	if r.observer != nil {
		r.observer.Logged(r, domain.ActivityEntry{At: r.now(), Kind: kind, Message: message, Data: data})
	}
}

// Visited lists the states entered, in order.
func (r *Run) Visited() []State {
	out := make([]State, len(r.History))
	for i, t := range r.History {
		out[i] = t.To
	}
	return out
}

// Outcome is what a finished run hands back to the event loop.
type Outcome struct {
	State          State
	Fulfilled      int
	Recommendation *domain.Recommendation
	TrackingID     string
	Proof          string
	Err            error
}

// RunSummary is the dashboard view of a finished run.
type RunSummary struct {
	ID         string       `json:"id"`
	Trigger    string       `json:"trigger"`
	StartStock int          `json:"startStock"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Final      State        `json:"final"`
	Fulfilled  int          `json:"fulfilled"`
	Proof      string       `json:"proof,omitempty"`
	Error      string       `json:"error,omitempty"`
	History    []Transition `json:"history"`
}
