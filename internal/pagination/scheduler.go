package pagination

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/stats"
)

// Trigger names why a pass was requested.
type Trigger int

const (
	TriggerContent Trigger = iota
	TriggerResize
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerContent:
		return "content"
	case TriggerResize:
		return "resize"
	case TriggerManual:
		return "manual"
	}
	return "unknown"
}

// LayoutFunc produces geometry for a committed tree.
type LayoutFunc func(t *content.Tree) (GeometryProvider, error)

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Engine *Engine
	// State returns the committed tree. Passes never mutate it.
	State  func() *content.Tree
	Layout LayoutFunc
	// Decorations receives the markers of every pass that is not stale.
	Decorations Decorations
	// Settle delays each pass so bursts of requests collapse into one.
	Settle time.Duration
	// OnResult, if set, observes every published result.
	OnResult func(Result)
	Stats    *stats.Window
	Logger   *slog.Logger
}

// Scheduler runs pagination passes on its own goroutine. Requests that
// arrive while a pass is pending or running collapse into one rerun, and a
// pass that was overtaken by a newer request is discarded.
type Scheduler struct {
	cfg  SchedulerConfig
	log  *slog.Logger
	reqs chan Trigger
	gen  atomic.Uint64

	// pubMu keeps a queued pass and RunNow from interleaving publication.
	// pubGen is the generation of the last published pass.
	pubMu  sync.Mutex
	pubGen uint64

	mu     sync.RWMutex
	last   Result
	passes int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Engine == nil {
		cfg.Engine = NewEngine(0, 0, log)
	}
	if cfg.Decorations == nil {
		cfg.Decorations = NewMarkerSet()
	}
	return &Scheduler{cfg: cfg, log: log, reqs: make(chan Trigger, 1)}
}

// Request asks for a pass. It never blocks.
func (s *Scheduler) Request(tr Trigger) {
	s.gen.Add(1)
	select {
	case s.reqs <- tr:
	default:
	}
}

// Start launches the scheduling goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case tr := <-s.reqs:
				if !s.settle(ctx) {
					return
				}
				s.runLatest(ctx, tr)
			}
		}
	}()
}

// Stop halts the goroutine and waits for it.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) settle(ctx context.Context) bool {
	if s.cfg.Settle <= 0 {
		return true
	}
	timer := time.NewTimer(s.cfg.Settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runLatest runs passes until one completes without being overtaken.
func (s *Scheduler) runLatest(ctx context.Context, tr Trigger) {
	for ctx.Err() == nil {
		gen := s.gen.Load()
		res, ok := s.pass()
		if s.gen.Load() != gen {
			s.log.Debug("pagination pass discarded", "trigger", tr.String(), "generation", gen)
			// Drain the coalesced request; this loop reruns it.
			select {
			case <-s.reqs:
			default:
			}
			continue
		}
		if ok {
			s.publish(gen, res)
		}
		return
	}
}

// pass runs the engine into a private layer so a stale pass never touches
// the published decorations.
func (s *Scheduler) pass() (Result, bool) {
	start := time.Now()
	tree := s.cfg.State()
	geom, err := s.cfg.Layout(tree)
	if err != nil {
		s.log.Warn("pagination layout failed", "error", err)
		return Result{}, false
	}
	res := s.cfg.Engine.Run(tree, geom, NewMarkerSet())
	if s.cfg.Stats != nil {
		s.cfg.Stats.Since(start)
	}
	if res.Skipped > 0 {
		s.log.Debug("pagination skipped runs", "skipped", res.Skipped, "runs", res.Runs)
	}
	return res, true
}

// publish installs res unless a pass from a later generation has already
// been published.
func (s *Scheduler) publish(gen uint64, res Result) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if gen < s.pubGen {
		s.log.Debug("pagination result superseded", "generation", gen, "published", s.pubGen)
		return false
	}
	s.pubGen = gen
	if res.Deferred {
		s.log.Debug("pagination deferred: container has no height")
	}
	s.cfg.Decorations.Clear()
	for _, m := range res.Markers {
		s.cfg.Decorations.Attach(m)
	}
	s.mu.Lock()
	s.last = res
	s.passes++
	s.mu.Unlock()
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(res)
	}
	return true
}

// RunNow runs a pass synchronously on the caller's goroutine and publishes
// it. It shares the generation counter with queued requests; if a newer
// pass is published first, that result is returned instead.
func (s *Scheduler) RunNow() Result {
	gen := s.gen.Add(1)
	res, ok := s.pass()
	if ok && !s.publish(gen, res) {
		return s.Last()
	}
	return res
}

// Last returns the most recently published result.
func (s *Scheduler) Last() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Passes returns the number of published passes.
func (s *Scheduler) Passes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes
}
