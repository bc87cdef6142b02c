package stats

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at time.Time
	d  time.Duration
}

// Snapshot aggregates the samples of one window, in milliseconds.
type Snapshot struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Window keeps durations recorded within a rolling time window.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	now     func() time.Time
}

// NewWindow returns a window keeping samples for maxAge (default one hour).
func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{samples: make([]sample, 0, 256), maxAge: maxAge, now: time.Now}
}

// Record adds one duration. Negative durations count as zero.
func (w *Window) Record(d time.Duration) {
	d = max(d, 0)
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	w.samples = append(w.samples, sample{at: now, d: d})
}

// Since records the time elapsed since start.
func (w *Window) Since(start time.Time) { w.Record(w.now().Sub(start)) }

// Snapshot aggregates the live samples.
func (w *Window) Snapshot() Snapshot {
	now := w.now()

	w.mu.Lock()
	w.pruneLocked(now)
	values := make([]float64, 0, len(w.samples))
	for _, s := range w.samples {
		values = append(values, float64(s.d)/float64(time.Millisecond))
	}
	w.mu.Unlock()

	if len(values) == 0 {
		return Snapshot{}
	}
	slices.Sort(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	return Snapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: sum / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	w.samples = slices.DeleteFunc(w.samples, func(s sample) bool { return s.at.Before(cutoff) })
}

// percentile interpolates linearly between the two closest ranks.
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := float64(len(sorted)-1) * pct / 100
	lo := int(idx)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// Set is a group of named windows sharing one max age.
type Set struct {
	mu      sync.Mutex
	maxAge  time.Duration
	windows map[string]*Window
}

// NewSet returns an empty set.
func NewSet(maxAge time.Duration) *Set {
	return &Set{maxAge: maxAge, windows: make(map[string]*Window)}
}

// Window returns the named window, creating it on first use.
func (s *Set) Window(name string) *Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[name]
	if !ok {
		w = NewWindow(s.maxAge)
		s.windows[name] = w
	}
	return w
}

// Snapshot aggregates every window by name.
func (s *Set) Snapshot() map[string]Snapshot {
	s.mu.Lock()
	names := make(map[string]*Window, len(s.windows))
	for k, w := range s.windows {
		names[k] = w
	}
	s.mu.Unlock()
	out := make(map[string]Snapshot, len(names))
	for k, w := range names {
		out[k] = w.Snapshot()
	}
	return out
}
