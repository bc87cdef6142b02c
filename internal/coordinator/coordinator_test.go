package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/editor"
)

type save struct {
	content, title string
}

type fakeSaver struct {
	mu    sync.Mutex
	saves []save
	errs  []error
	calls chan save
}

func newFakeSaver(errs ...error) *fakeSaver {
	return &fakeSaver{errs: errs, calls: make(chan save, 16)}
}

func (f *fakeSaver) SaveContent(_ context.Context, c, title string) error {
	f.mu.Lock()
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.saves = append(f.saves, save{c, title})
	}
	f.mu.Unlock()
	if err == nil {
		f.calls <- save{c, title}
	}
	return err
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func newCoordinator(t *testing.T, s Saver, debounce time.Duration) (*editor.Editor, *Coordinator) {
	t.Helper()
	ed := editor.MustNew(editor.DefaultConfig(nil))
	c := New(ed, s, Config{Debounce: debounce, Backoff: func(int) time.Duration { return time.Millisecond }})
	return ed, c
}

func insert(t *testing.T, ed *editor.Editor, text string) {
	t.Helper()
	if err := ed.Update(func(tx *editor.Tx) error { return tx.InsertText(text) }); err != nil {
		t.Fatalf("InsertText: %v", err)
	}
}

func TestHydrateCorruptFallsBackToEmpty(t *testing.T) {
	fs := newFakeSaver()
	ed, c := newCoordinator(t, fs, 0)
	insert(t, ed, "消える")

	err := c.Hydrate([]byte(`{"root":`), "題")
	if !errors.Is(err, content.ErrCorruptContent) {
		t.Fatalf("expected ErrCorruptContent, got %v", err)
	}
	if got := content.ExtractText(ed.State()); got != "\n" {
		t.Errorf("expected an empty document, got %q", got)
	}
	if c.Title() != "題" {
		t.Errorf("title not installed: %q", c.Title())
	}
}

func TestHydrateCorruptKeepsStoredBlob(t *testing.T) {
	fs := newFakeSaver()
	_, c := newCoordinator(t, fs, 0)
	if err := c.Hydrate([]byte(`{"root":`), "題"); !errors.Is(err, content.ErrCorruptContent) {
		t.Fatalf("expected ErrCorruptContent, got %v", err)
	}
	c.Start(context.Background())
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	c.Stop()
	if fs.count() != 0 {
		t.Fatalf("untouched fallback must not be saved, got %d saves", fs.count())
	}

	ed2, c2 := newCoordinator(t, fs, 0)
	if err := c2.Hydrate([]byte(`{"root":`), "題"); err == nil {
		t.Fatal("expected a decode error")
	}
	insert(t, ed2, "新")
	if err := c2.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Errorf("an edit after the fallback should save, got %d saves", fs.count())
	}
}

func TestHydrateRunsOnce(t *testing.T) {
	src := editor.MustNew(editor.DefaultConfig(nil))
	insert(t, src, "一度")
	blob, _ := src.Serialize()

	ed, c := newCoordinator(t, newFakeSaver(), 0)
	if err := c.Hydrate(blob, "a"); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if err := c.Hydrate([]byte("garbage"), "b"); err != nil {
		t.Fatalf("second Hydrate should be ignored, got %v", err)
	}
	if got := content.ExtractText(ed.State()); got != "一度\n" {
		t.Errorf("unexpected content %q", got)
	}
	if c.Title() != "a" {
		t.Errorf("title changed by second Hydrate: %q", c.Title())
	}
}

func TestHydratedContentIsNotResaved(t *testing.T) {
	src := editor.MustNew(editor.DefaultConfig(nil))
	insert(t, src, "保存済み")
	blob, _ := src.Serialize()

	fs := newFakeSaver()
	_, c := newCoordinator(t, fs, 0)
	if err := c.Hydrate(blob, "t"); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 0 {
		t.Errorf("expected no save, got %d", fs.count())
	}
	if c.Stats().Skipped != 1 {
		t.Errorf("expected one skipped save, got %+v", c.Stats())
	}
}

func TestCommitsAreSavedInBackground(t *testing.T) {
	fs := newFakeSaver()
	ed, c := newCoordinator(t, fs, 10*time.Millisecond)
	c.Hydrate(nil, "無題")
	c.Start(context.Background())
	defer c.Stop()

	insert(t, ed, "吾輩")
	insert(t, ed, "は猫")

	want, _ := ed.Serialize()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-fs.calls:
			if s.content != string(want) {
				continue
			}
			if s.title != "無題" {
				t.Errorf("unexpected title %q", s.title)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for the committed state to be saved")
		}
	}
}

func TestHydrateDoesNotTriggerSave(t *testing.T) {
	fs := newFakeSaver()
	_, c := newCoordinator(t, fs, 0)
	c.Start(context.Background())
	c.Hydrate(nil, "")
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	if n := fs.count(); n != 0 {
		t.Errorf("hydration should not save, got %d", n)
	}
}

func TestSetTitleSaves(t *testing.T) {
	fs := newFakeSaver()
	_, c := newCoordinator(t, fs, 0)
	c.Hydrate(nil, "旧")
	c.Start(context.Background())
	defer c.Stop()

	c.SetTitle("新")
	select {
	case s := <-fs.calls:
		if s.title != "新" {
			t.Errorf("expected new title, got %q", s.title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for save")
	}
}

func TestFlushDeduplicates(t *testing.T) {
	fs := newFakeSaver()
	ed, c := newCoordinator(t, fs, 0)
	insert(t, ed, "同じ")
	for range 2 {
		if err := c.Flush(context.Background()); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}
	if fs.count() != 1 {
		t.Errorf("expected one save, got %d", fs.count())
	}
	if st := c.Stats(); st.Saves != 1 || st.Skipped != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRetryableErrorsAreRetried(t *testing.T) {
	busy := Retryable(errors.New("database is locked"))
	fs := newFakeSaver(busy, busy)
	ed, c := newCoordinator(t, fs, 0)
	insert(t, ed, "再試行")
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Errorf("expected the third attempt to land, got %d saves", fs.count())
	}
}

func TestPermanentErrorsFailFast(t *testing.T) {
	boom := errors.New("disk gone")
	fs := newFakeSaver(boom)
	ed, c := newCoordinator(t, fs, 0)
	insert(t, ed, "失敗")
	if err := c.Flush(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Stats().Failures != 1 {
		t.Errorf("expected a failure, got %+v", c.Stats())
	}
	// A failed save does not count as saved content.
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Errorf("expected retry on next flush, got %d", fs.count())
	}
}

func TestRetriesGiveUp(t *testing.T) {
	busy := Retryable(errors.New("busy"))
	fs := newFakeSaver(busy, busy, busy, busy, busy)
	ed, c := newCoordinator(t, fs, 0)
	insert(t, ed, "諦め")
	err := c.Flush(context.Background())
	if !IsRetryable(err) {
		t.Fatalf("expected the last retryable error, got %v", err)
	}
}

func TestBackoffGrows(t *testing.T) {
	for i := range MaxRetries {
		lo := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		if d := Backoff(i); d < lo || d >= lo+lo/2 {
			t.Errorf("Backoff(%d) = %v, want [%v,%v)", i, d, lo, lo+lo/2)
		}
	}
	if d := Backoff(20); d > 7500*time.Millisecond {
		t.Errorf("Backoff should cap, got %v", d)
	}
}
