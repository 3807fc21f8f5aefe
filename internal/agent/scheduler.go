package agent

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Token is the right to run the single active workflow.
type Token struct {
	RunID    string
	Trigger  string
	Acquired time.Time
}

// Scheduler enforces at most one active workflow with a compare-and-set
// on the current token.
type Scheduler struct {
	current atomic.Pointer[Token]
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// TryAcquire returns a token, or false while another workflow holds one.
func (s *Scheduler) TryAcquire(trigger string) (*Token, bool) {
	t := &Token{RunID: uuid.NewString(), Trigger: trigger, Acquired: time.Now()}
	if !s.current.CompareAndSwap(nil, t) {
		return nil, false
	}
	return t, true
}

// Release frees t. Releasing a token that is not current is a no-op.
func (s *Scheduler) Release(t *Token) bool {
	return t != nil && s.current.CompareAndSwap(t, nil)
}

func (s *Scheduler) Active() bool {
	return s.current.Load() != nil
}

func (s *Scheduler) Current() *Token {
	return s.current.Load()
}
