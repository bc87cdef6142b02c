package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/tategaki/internal/coordinator"
	"github.com/dgallion1/tategaki/internal/store"
)

const minReapInterval = time.Second

// Manager keeps one session per open document and closes sessions nobody
// has used for the idle timeout.
type Manager struct {
	store *store.Store
	cfg   Config
	idle  time.Duration
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	base     context.Context

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	s    *Session
	refs int
}

// NewManager returns a manager opening sessions from st.
func NewManager(st *store.Store, cfg Config, idle time.Duration) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:    st,
		cfg:      cfg,
		idle:     idle,
		log:      cfg.Logger,
		sessions: make(map[string]*entry),
		base:     context.Background(),
	}
}

// Start launches the idle reaper. Sessions run under ctx.
func (m *Manager) Start(ctx context.Context) {
	reapCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.base = ctx
	m.mu.Unlock()
	m.cancel = cancel
	if m.idle <= 0 {
		return
	}
	interval := max(m.idle/2, minReapInterval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-reapCtx.Done():
				return
			case <-ticker.C:
				m.Cleanup()
			}
		}
	}()
}

// Stop halts the reaper and closes every session, saving pending edits.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range open {
		e.s.Close()
	}
}

// Acquire returns the session for document id, opening it on first use.
// The returned release function must be called when the caller is done.
// A document whose stored content is corrupt still opens; see
// Session.LoadError.
func (m *Manager) Acquire(ctx context.Context, id string) (*Session, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		s, err := m.open(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		e = &entry{s: s}
		m.sessions[id] = e
	}
	e.refs++
	e.s.touch()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			e.refs--
			m.mu.Unlock()
			e.s.touch()
		})
	}
	return e.s, release, nil
}

func (m *Manager) open(ctx context.Context, id string) (*Session, error) {
	doc, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := m.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	cfg := m.cfg
	cfg.ShowPageBreak = settings.ShowPageBreak
	s := New(id, StoreSaver(m.store, id), cfg)
	if err := s.Open(m.base, []byte(doc.Content), doc.Title); err != nil {
		s.log.Warn("opened with unreadable content", "error", err)
	}
	s.log.Info("session opened")
	return s, nil
}

// StoreSaver saves document id into st. Failures other than a missing
// document are retried.
func StoreSaver(st *store.Store, id string) coordinator.Saver {
	return coordinator.SaverFunc(func(ctx context.Context, content, title string) error {
		err := st.SaveContent(ctx, id, content, title)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return coordinator.Retryable(err)
		}
		return err
	})
}

// Lookup returns the open session for id, if any.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// Evict closes the session for id regardless of its users.
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		e.s.Close()
	}
}

// Cleanup closes unused sessions idle for longer than the timeout.
func (m *Manager) Cleanup() {
	now := time.Now()
	var idle []*Session
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.refs == 0 && now.Sub(e.s.IdleSince()) > m.idle {
			idle = append(idle, e.s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		s.Close()
		s.log.Info("idle session closed")
	}
}

// SetShowPageBreak applies the preference to every open session.
func (m *Manager) SetShowPageBreak(show bool) {
	for _, s := range m.list() {
		s.SetShowPageBreak(show)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SaveStats sums the save counters of open sessions.
func (m *Manager) SaveStats() coordinator.SaveStats {
	var total coordinator.SaveStats
	for _, s := range m.list() {
		st := s.SaveStats()
		total.Saves += st.Saves
		total.Skipped += st.Skipped
		total.Failures += st.Failures
	}
	return total
}

func (m *Manager) list() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.s)
	}
	return out
}
