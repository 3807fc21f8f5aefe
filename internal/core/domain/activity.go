package domain

import (
	"sync"
	"time"
)

// DefaultActivityCapacity matches the agent terminal's visible history.
const DefaultActivityCapacity = 5

type ActivityEntry struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ActivityLog is a bounded, most-recent-first history safe for concurrent use.
type ActivityLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []ActivityEntry
}

func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &ActivityLog{capacity: capacity}
}

// Add prepends e and drops the oldest entry once full.
func (l *ActivityLog) Add(e ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]ActivityEntry{e}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Entries returns a copy, newest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
