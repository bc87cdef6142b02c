// Package session runs one live editing session per open document: the
// editor, its save coordinator and its pagination scheduler, plus the
// subscribers watching them.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/coordinator"
	"github.com/dgallion1/tategaki/internal/editor"
	"github.com/dgallion1/tategaki/internal/pagination"
	"github.com/dgallion1/tategaki/internal/stats"
	"github.com/dgallion1/tategaki/internal/surface"
)

// Event types pushed to subscribers.
const (
	EventState = "state"
	EventPages = "pages"
	EventError = "error"
)

const subscriberBuffer = 16

// Event is one update pushed to subscribers.
type Event struct {
	Type      string            `json:"type"`
	Title     string            `json:"title,omitempty"`
	Content   json.RawMessage   `json:"content,omitempty"`
	Selection *editor.Selection `json:"selection,omitempty"`
	Stats     *content.Stats    `json:"stats,omitempty"`
	Pages     *Pages            `json:"pages,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Pages is the published pagination state. Markers and indicators are
// empty while page breaks are hidden; Count is always filled.
type Pages struct {
	Count      int                    `json:"count"`
	Visible    bool                   `json:"visible"`
	Deferred   bool                   `json:"deferred,omitempty"`
	Markers    []pagination.Marker    `json:"markers"`
	Indicators []pagination.Indicator `json:"indicators"`
}

// Config tunes a session.
type Config struct {
	PageWidth       float64
	ReferenceHeight float64
	Settle          time.Duration
	SaveDebounce    time.Duration
	// Viewport is the initial surface; clients replace it with Resize.
	Viewport      surface.Viewport
	Measurer      surface.Measurer
	ShowPageBreak bool
	Stats         *stats.Set
	Logger        *slog.Logger
}

// Session is a live document.
type Session struct {
	id  string
	log *slog.Logger

	ed    *editor.Editor
	coord *coordinator.Coordinator
	sched *pagination.Scheduler

	measurer surface.Measurer
	markers  *pagination.MarkerSet
	visible  atomic.Bool

	vpMu sync.RWMutex
	vp   surface.Viewport

	loadErr error

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	lastUsed   atomic.Int64
	unregister func()
}

// New builds a stopped session for document id, saving through saver.
func New(id string, saver coordinator.Saver, cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("doc_id", id)
	if cfg.Measurer == nil {
		cfg.Measurer = surface.FixedMeasurer{}
	}

	s := &Session{
		id:       id,
		log:      log,
		ed:       editor.MustNew(editor.DefaultConfig(log)),
		measurer: cfg.Measurer,
		markers:  pagination.NewMarkerSet(),
		vp:       cfg.Viewport,
		subs:     make(map[int]chan Event),
	}
	s.visible.Store(cfg.ShowPageBreak)
	s.touch()

	var saveStats, pageStats *stats.Window
	if cfg.Stats != nil {
		saveStats = cfg.Stats.Window("saves")
		pageStats = cfg.Stats.Window("pagination")
	}
	s.coord = coordinator.New(s.ed, saver, coordinator.Config{
		Debounce: cfg.SaveDebounce,
		Stats:    saveStats,
		Logger:   log,
	})
	s.sched = pagination.NewScheduler(pagination.SchedulerConfig{
		Engine:   pagination.NewEngine(cfg.PageWidth, cfg.ReferenceHeight, log),
		State:    s.ed.State,
		Layout:   s.layout,
		Settle:   cfg.Settle,
		OnResult: s.onPages,
		Stats:    pageStats,
		Logger:   log,
	})
	s.unregister = s.ed.RegisterUpdateListener(s.onUpdate)
	return s
}

func (s *Session) layout(t *content.Tree) (pagination.GeometryProvider, error) {
	return surface.Lay(t, s.Viewport(), s.measurer), nil
}

// Open installs the stored content and starts the background workers. A
// corrupt blob still opens an empty document; the decode error is kept
// for LoadError and also returned.
func (s *Session) Open(ctx context.Context, blob []byte, title string) error {
	s.loadErr = s.coord.Hydrate(blob, title)
	s.coord.Start(ctx)
	s.sched.Start(ctx)
	s.sched.Request(pagination.TriggerManual)
	return s.loadErr
}

// Close stops the workers, saving anything pending, and ends every
// subscription.
func (s *Session) Close() {
	s.unregister()
	s.sched.Stop()
	s.coord.Stop()
	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
}

// ID returns the document id.
func (s *Session) ID() string { return s.id }

// Editor returns the session's editor.
func (s *Session) Editor() *editor.Editor { return s.ed }

// LoadError returns the error met while opening stored content, if any.
func (s *Session) LoadError() error { return s.loadErr }

// SaveStats returns the save counters.
func (s *Session) SaveStats() coordinator.SaveStats { return s.coord.Stats() }

// Flush saves pending edits now.
func (s *Session) Flush(ctx context.Context) error { return s.coord.Flush(ctx) }

// Title returns the current title.
func (s *Session) Title() string { return s.coord.Title() }

// SetTitle renames the document. The new title is saved with the content.
func (s *Session) SetTitle(title string) {
	s.touch()
	s.coord.SetTitle(title)
	s.broadcast(s.snapshot())
}

// Viewport returns the current surface.
func (s *Session) Viewport() surface.Viewport {
	s.vpMu.RLock()
	defer s.vpMu.RUnlock()
	return s.vp
}

// Resize replaces the surface and schedules a pagination pass.
func (s *Session) Resize(vp surface.Viewport) {
	s.touch()
	s.vpMu.Lock()
	s.vp = vp
	s.vpMu.Unlock()
	s.sched.Request(pagination.TriggerResize)
}

// ShowPageBreak reports whether markers are published.
func (s *Session) ShowPageBreak() bool { return s.visible.Load() }

// SetShowPageBreak toggles marker publication. Hiding clears the published
// markers at once; showing schedules a pass.
func (s *Session) SetShowPageBreak(show bool) {
	if s.visible.Swap(show) == show {
		return
	}
	if !show {
		s.markers.Clear()
		s.broadcast(Event{Type: EventPages, Pages: s.pages()})
		return
	}
	s.sched.Request(pagination.TriggerManual)
}

// Paginate runs a pass synchronously and returns the published pages.
func (s *Session) Paginate() Pages {
	s.touch()
	s.sched.RunNow()
	return *s.pages()
}

// Pages returns the most recently published pages.
func (s *Session) Pages() Pages { return *s.pages() }

func (s *Session) pages() *Pages {
	last := s.sched.Last()
	p := &Pages{
		Count:      last.PageCount,
		Visible:    s.visible.Load(),
		Deferred:   last.Deferred,
		Markers:    s.markers.Markers(),
		Indicators: s.markers.Indicators(),
	}
	if p.Markers == nil {
		p.Markers = []pagination.Marker{}
	}
	if p.Indicators == nil {
		p.Indicators = []pagination.Indicator{}
	}
	return p
}

// Snapshot returns the full state as a state event.
func (s *Session) Snapshot() Event { return s.snapshot() }

func (s *Session) snapshot() Event {
	tree := s.ed.State()
	ev := Event{Type: EventState, Title: s.coord.Title()}
	if blob, err := s.ed.Registry().Serialize(tree); err == nil {
		ev.Content = blob
	} else {
		s.log.Warn("serializing state failed", "error", err)
	}
	sel := s.ed.Selection()
	ev.Selection = &sel
	st := content.Measure(tree)
	ev.Stats = &st
	ev.Pages = s.pages()
	return ev
}

func (s *Session) onUpdate(ev editor.UpdateEvent) {
	s.sched.Request(pagination.TriggerContent)
	if ev.HasTag(editor.TagHydrate) {
		return
	}
	s.broadcast(s.snapshot())
}

// onPages publishes a pass. Markers reach subscribers only while page
// breaks are shown.
func (s *Session) onPages(res pagination.Result) {
	if s.visible.Load() {
		s.markers.Replace(res.Markers)
	} else {
		s.markers.Clear()
	}
	s.broadcast(Event{Type: EventPages, Pages: s.pages()})
}

// Subscribe returns a channel of events and a function ending the
// subscription. Slow subscribers miss events rather than block the
// session; every state event is complete, so the next one catches them up.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	}
}

func (s *Session) broadcast(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Debug("subscriber lagging, event dropped", "type", ev.Type)
		}
	}
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// IdleSince returns the time of the last client action.
func (s *Session) IdleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }
