package domain

import "time"

// SalesWindowSize is the number of sale timestamps retained for velocity.
const SalesWindowSize = 10

// SalesWindow keeps the most recent sale timestamps. It is not safe for
// concurrent use; the agent event loop owns it.
type SalesWindow struct {
	samples []time.Time
	day     time.Time
	today   int
}

// Record appends a sale, evicting the oldest sample once the window is full.
func (w *SalesWindow) Record(at time.Time) {
	w.samples = append(w.samples, at)
	if len(w.samples) > SalesWindowSize {
		w.samples = w.samples[len(w.samples)-SalesWindowSize:]
	}

	day := startOfDay(at)
	if !day.Equal(w.day) {
		w.day = day
		w.today = 0
	}
	w.today++
}

// PerHour counts retained samples within the hour before now.
func (w *SalesWindow) PerHour(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	n := 0
	for _, s := range w.samples {
		if s.After(cutoff) {
			n++
		}
	}
	return n
}

// TotalToday counts sales recorded since local midnight of now.
func (w *SalesWindow) TotalToday(now time.Time) int {
	if !startOfDay(now).Equal(w.day) {
		return 0
	}
	return w.today
}

// Len returns the number of retained samples.
func (w *SalesWindow) Len() int {
	return len(w.samples)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
