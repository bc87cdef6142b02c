package editor

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgallion1/tategaki/internal/content"
)

// Update tags passed to listeners.
const (
	TagHydrate = "hydrate"
	TagUndo    = "undo"
	TagRedo    = "redo"
	TagImport  = "import"
)

// DefaultHistoryLimit bounds the undo stack.
const DefaultHistoryLimit = 100

// Config configures an Editor.
type Config struct {
	// Nodes are registered on top of the core rich-text nodes.
	Nodes        []content.NodeClass
	Plugins      []Plugin
	HistoryLimit int
	Logger       *slog.Logger
}

// DefaultConfig registers the annotation nodes with their plugins.
func DefaultConfig(log *slog.Logger) Config {
	return Config{
		Nodes:        content.AnnotationClasses(),
		Plugins:      DefaultPlugins(),
		HistoryLimit: DefaultHistoryLimit,
		Logger:       log,
	}
}

// UpdateEvent is delivered to listeners after each commit.
type UpdateEvent struct {
	Tree      *content.Tree
	Prev      *content.Tree
	Selection Selection
	Tags      []string
}

// HasTag reports whether the commit carried tag.
func (u UpdateEvent) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// UpdateListener observes commits. Listeners run synchronously after the
// commit and must not call Update.
type UpdateListener func(UpdateEvent)

// Editor owns the committed document tree. Updates are serialized; each runs
// on a private snapshot that is either committed atomically or discarded.
type Editor struct {
	reg     *content.Registry
	plugins map[string]Plugin
	log     *slog.Logger

	state atomic.Pointer[content.Tree]

	mu        sync.Mutex
	selection Selection
	undo      []*content.Tree
	redo      []*content.Tree
	limit     int

	notifyMu  sync.Mutex
	lmu       sync.RWMutex
	listeners map[int]UpdateListener
	nextID    int
}

// New builds an editor. A node registered without its companion plugin, or a
// plugin without its node, is a *content.ConfigError.
func New(cfg Config) (*Editor, error) {
	reg := content.BaseRegistry()
	for _, c := range cfg.Nodes {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	plugins, err := validatePlugins(reg, cfg.Plugins)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	e := &Editor{
		reg:       reg,
		plugins:   plugins,
		log:       log,
		limit:     limit,
		listeners: make(map[int]UpdateListener),
	}
	e.state.Store(content.NewDocument())
	return e, nil
}

// MustNew is New that panics on configuration errors.
func MustNew(cfg Config) *Editor {
	e, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// Registry returns the node registry in use.
func (e *Editor) Registry() *content.Registry { return e.reg }

// HasPlugin reports whether the named plugin is installed.
func (e *Editor) HasPlugin(name string) bool {
	_, ok := e.plugins[name]
	return ok
}

// State returns the committed tree. Callers must not mutate it.
func (e *Editor) State() *content.Tree { return e.state.Load() }

// Read runs fn against the committed tree.
func (e *Editor) Read(fn func(t *content.Tree)) { fn(e.state.Load()) }

// Selection returns the current selection.
func (e *Editor) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// Serialize encodes the committed tree.
func (e *Editor) Serialize() ([]byte, error) {
	return e.reg.Serialize(e.State())
}

// RegisterUpdateListener adds fn and returns a function that removes it.
func (e *Editor) RegisterUpdateListener(fn UpdateListener) func() {
	e.lmu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.lmu.Unlock()
	return func() {
		e.lmu.Lock()
		delete(e.listeners, id)
		e.lmu.Unlock()
	}
}

// Tx is the mutable view handed to an update function.
type Tx struct {
	Tree      *content.Tree
	Selection Selection
	editor    *Editor
}

// Update runs fn on a snapshot of the committed tree. If fn returns an error
// the snapshot is discarded. A snapshot that fn left unchanged is not
// committed and creates no history entry.
func (e *Editor) Update(fn func(tx *Tx) error, tags ...string) error {
	e.mu.Lock()
	prev := e.state.Load()
	tx := &Tx{Tree: prev.Snapshot(), Selection: e.selection, editor: e}
	if err := fn(tx); err != nil {
		e.mu.Unlock()
		return err
	}
	if !tx.Tree.Has(tx.Selection.Key) {
		tx.Selection = Selection{}
	}
	if !tx.Tree.Dirty() {
		e.selection = tx.Selection
		e.mu.Unlock()
		return nil
	}
	tx.Tree.Prune()
	tx.Tree.ClearDirty()
	e.undo = append(e.undo, prev)
	if len(e.undo) > e.limit {
		e.undo = e.undo[len(e.undo)-e.limit:]
	}
	e.redo = nil
	e.commit(tx.Tree, tx.Selection)
	ev := UpdateEvent{Tree: tx.Tree, Prev: prev, Selection: tx.Selection, Tags: tags}
	e.notifyMu.Lock()
	e.mu.Unlock()
	e.notify(ev)
	e.notifyMu.Unlock()
	return nil
}

func (e *Editor) commit(t *content.Tree, sel Selection) {
	e.state.Store(t)
	e.selection = sel
}

func (e *Editor) notify(ev UpdateEvent) {
	e.lmu.RLock()
	ls := make([]UpdateListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.lmu.RUnlock()
	for _, l := range ls {
		l(ev)
	}
}

// SetState replaces the document wholesale and clears history.
func (e *Editor) SetState(t *content.Tree, tags ...string) {
	t.ClearDirty()
	e.mu.Lock()
	prev := e.state.Load()
	e.undo, e.redo = nil, nil
	e.commit(t, Selection{})
	ev := UpdateEvent{Tree: t, Prev: prev, Tags: tags}
	e.notifyMu.Lock()
	e.mu.Unlock()
	e.notify(ev)
	e.notifyMu.Unlock()
}

// Load decodes blob with the editor's registry and installs it. The
// committed tree is left alone on error.
func (e *Editor) Load(blob []byte, tags ...string) error {
	t, err := e.reg.Deserialize(blob)
	if err != nil {
		return err
	}
	e.SetState(t, tags...)
	return nil
}

// ErrNothingToUndo is returned by Undo and Redo when the stack is empty.
var ErrNothingToUndo = errors.New("editor: nothing to undo")

// Undo restores the previous committed tree.
func (e *Editor) Undo() error { return e.step(&e.undo, &e.redo, TagUndo) }

// Redo re-applies the last undone commit.
func (e *Editor) Redo() error { return e.step(&e.redo, &e.undo, TagRedo) }

func (e *Editor) step(from, to *[]*content.Tree, tag string) error {
	e.mu.Lock()
	if len(*from) == 0 {
		e.mu.Unlock()
		return ErrNothingToUndo
	}
	prev := e.state.Load()
	next := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	*to = append(*to, prev)
	sel := e.selection
	if !next.Has(sel.Key) {
		sel = Selection{}
	}
	e.commit(next, sel)
	ev := UpdateEvent{Tree: next, Prev: prev, Selection: sel, Tags: []string{tag}}
	e.notifyMu.Lock()
	e.mu.Unlock()
	e.notify(ev)
	e.notifyMu.Unlock()
	return nil
}

// CanUndo reports whether Undo would succeed.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

// CanRedo reports whether Redo would succeed.
func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}
