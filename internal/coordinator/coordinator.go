// Package coordinator connects an editor to its persistence: it installs
// the stored content once and saves every later commit in the background.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/editor"
	"github.com/dgallion1/tategaki/internal/stats"
)

const stopFlushTimeout = 5 * time.Second

// Saver persists the serialized content and title of one document.
type Saver interface {
	SaveContent(ctx context.Context, content, title string) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, content, title string) error

func (f SaverFunc) SaveContent(ctx context.Context, content, title string) error {
	return f(ctx, content, title)
}

// Config tunes a Coordinator. Zero values pick the defaults.
type Config struct {
	// Debounce is the quiet period before a save; zero saves at once.
	Debounce   time.Duration
	MaxRetries int
	Backoff    func(attempt int) time.Duration
	Stats      *stats.Window
	Logger     *slog.Logger
}

// SaveStats counts the outcome of save attempts.
type SaveStats struct {
	Saves    int `json:"saves"`
	Skipped  int `json:"skipped"`
	Failures int `json:"failures"`
}

// Coordinator observes an editor and forwards its content to a Saver.
type Coordinator struct {
	ed    *editor.Editor
	saver Saver
	cfg   Config
	log   *slog.Logger

	hydrate sync.Once

	wake chan struct{}

	mu       sync.Mutex
	title    string
	lastHash [32]byte
	hashed   bool
	counts   SaveStats

	// saveMu serializes the worker with Flush.
	saveMu sync.Mutex

	unregister func()
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New attaches a coordinator to ed. Saving starts with Start.
func New(ed *editor.Editor, saver Saver, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MaxRetries
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Backoff
	}
	c := &Coordinator{
		ed:    ed,
		saver: saver,
		cfg:   cfg,
		log:   cfg.Logger,
		wake:  make(chan struct{}, 1),
	}
	c.unregister = ed.RegisterUpdateListener(c.onUpdate)
	return c
}

// onUpdate runs inside the editor's commit and must not block.
func (c *Coordinator) onUpdate(ev editor.UpdateEvent) {
	if ev.HasTag(editor.TagHydrate) {
		return
	}
	c.poke()
}

func (c *Coordinator) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Hydrate installs the stored content and title. Only the first call has
// any effect. Empty content yields an empty document. Content that cannot
// be decoded also yields an empty document, and the decode error
// (wrapping content.ErrCorruptContent) is returned so the caller can
// surface it. The stored blob is not overwritten until the next edit.
func (c *Coordinator) Hydrate(blob []byte, title string) error {
	var err error
	c.hydrate.Do(func() {
		c.mu.Lock()
		c.title = title
		c.mu.Unlock()

		if len(blob) == 0 {
			c.ed.SetState(content.NewDocument(), editor.TagHydrate)
		} else if err = c.ed.Load(blob, editor.TagHydrate); err != nil {
			c.log.Warn("stored content unreadable, starting empty", "error", err)
			c.ed.SetState(content.NewDocument(), editor.TagHydrate)
		}
		// The installed state counts as saved, so an untouched fallback
		// never replaces the stored blob.
		if cur, serr := c.ed.Serialize(); serr == nil {
			c.mu.Lock()
			c.lastHash, c.hashed = digest(cur, title), true
			c.mu.Unlock()
		}
	})
	return err
}

// SetTitle changes the title saved with the content.
func (c *Coordinator) SetTitle(title string) {
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
	c.poke()
}

// Title returns the current title.
func (c *Coordinator) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Stats returns the save counters.
func (c *Coordinator) Stats() SaveStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Start launches the save worker.
func (c *Coordinator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-c.wake:
			}
			if !c.debounce(workerCtx) {
				return
			}
			if err := c.Flush(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error("save failed", "error", err)
			}
		}
	}()
}

// Stop detaches from the editor, halts the worker and saves whatever is
// still pending.
func (c *Coordinator) Stop() {
	c.unregister()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		c.log.Error("final save failed", "error", err)
	}
}

// debounce waits until no commit has arrived for the debounce period.
func (c *Coordinator) debounce(ctx context.Context) bool {
	if c.cfg.Debounce == 0 {
		return true
	}
	timer := time.NewTimer(c.cfg.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.wake:
			timer.Reset(c.cfg.Debounce)
		case <-timer.C:
			return true
		}
	}
}

// Flush saves the committed content now unless it matches the last save.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	blob, err := c.ed.Serialize()
	if err != nil {
		return fmt.Errorf("serializing content: %w", err)
	}
	c.mu.Lock()
	title := c.title
	h := digest(blob, title)
	if c.hashed && h == c.lastHash {
		c.counts.Skipped++
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	start := time.Now()
	if err := c.saveWithRetry(ctx, string(blob), title); err != nil {
		c.mu.Lock()
		c.counts.Failures++
		c.mu.Unlock()
		return err
	}
	if c.cfg.Stats != nil {
		c.cfg.Stats.Since(start)
	}
	c.mu.Lock()
	c.lastHash, c.hashed = h, true
	c.counts.Saves++
	c.mu.Unlock()
	c.log.Debug("content saved", "bytes", len(blob))
	return nil
}

func (c *Coordinator) saveWithRetry(ctx context.Context, blob, title string) error {
	for attempt := 0; ; attempt++ {
		err := c.saver.SaveContent(ctx, blob, title)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		wait := c.cfg.Backoff(attempt)
		c.log.Warn("save failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func digest(blob []byte, title string) [32]byte {
	h := blake3.New()
	h.Write(blob)
	h.Write([]byte{0})
	h.Write([]byte(title))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
