package editor

import (
	"errors"
	"testing"

	"github.com/dgallion1/tategaki/internal/content"
)

func newEditor(t *testing.T, text string) *Editor {
	t.Helper()
	e, err := New(DefaultConfig(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if text != "" {
		if err := e.Update(func(tx *Tx) error { return tx.InsertText(text) }); err != nil {
			t.Fatalf("InsertText: %v", err)
		}
	}
	return e
}

func selectRange(t *testing.T, e *Editor, start, end int) {
	t.Helper()
	sel := e.Selection()
	sel.Start, sel.End = start, end
	if err := e.Select(sel); err != nil {
		t.Fatalf("Select: %v", err)
	}
}

func TestNewRejectsNodeWithoutPlugin(t *testing.T) {
	_, err := New(Config{Nodes: content.AnnotationClasses(), Plugins: []Plugin{RubyPlugin{}, AuthorPlugin{}}})
	var cfg *content.ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfg.Type != content.TypeTateChuYoko {
		t.Errorf("expected tate-chu-yoko, got %s", cfg.Type)
	}
}

func TestNewRejectsPluginWithoutNode(t *testing.T) {
	_, err := New(Config{Plugins: []Plugin{RubyPlugin{}}})
	if !errors.Is(err, content.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestMustNewPanicsOnConfigError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNew(Config{Plugins: []Plugin{AuthorPlugin{}}})
}

func TestCommandWithoutPluginIsConfigError(t *testing.T) {
	e := MustNew(Config{})
	err := e.Update(func(tx *Tx) error {
		if err := tx.InsertText("花"); err != nil {
			return err
		}
		tx.Selection.Start = 0
		return tx.InsertRuby("はな")
	})
	var cfg *content.ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestInsertTextCommitsAndNotifies(t *testing.T) {
	e := newEditor(t, "")
	var events []UpdateEvent
	e.RegisterUpdateListener(func(ev UpdateEvent) { events = append(events, ev) })

	if err := e.Update(func(tx *Tx) error { return tx.InsertText("吾輩は猫である") }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := content.ExtractText(e.State()); got != "吾輩は猫である\n" {
		t.Errorf("unexpected text %q", got)
	}
	if sel := e.Selection(); sel.Start != 7 || !sel.Collapsed() {
		t.Errorf("caret should follow the insertion, got %+v", sel)
	}
}

func TestNoOpUpdateDoesNotCommit(t *testing.T) {
	e := newEditor(t, "")
	calls := 0
	e.RegisterUpdateListener(func(UpdateEvent) { calls++ })
	before := e.State()

	if err := e.Update(func(*Tx) error { return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no notification, got %d", calls)
	}
	if e.State() != before {
		t.Error("committed tree should be unchanged")
	}
	if e.CanUndo() {
		t.Error("no-op update should not create history")
	}
}

func TestFailedUpdateIsDiscarded(t *testing.T) {
	e := newEditor(t, "花")
	before := e.State()
	selectRange(t, e, 0, 1)

	err := e.Update(func(tx *Tx) error { return tx.InsertRuby("   ") })
	if !errors.Is(err, ErrEmptyAnnotation) {
		t.Fatalf("expected ErrEmptyAnnotation, got %v", err)
	}
	if e.State() != before {
		t.Error("failed update must not commit")
	}
}

func TestInsertRubyWrapsSelection(t *testing.T) {
	e := newEditor(t, "吾輩は猫")
	selectRange(t, e, 3, 4)

	if err := e.Update(func(tx *Tx) error { return tx.InsertRuby("ねこ") }); err != nil {
		t.Fatalf("InsertRuby: %v", err)
	}
	tree := e.State()
	p := tree.Children(tree.Root())[0]
	kids := tree.Children(p)
	if len(kids) != 2 {
		t.Fatalf("expected text + ruby, got %d children", len(kids))
	}
	r, ok := tree.Get(kids[1]).(*content.RubyNode)
	if !ok {
		t.Fatalf("expected ruby, got %s", tree.Get(kids[1]).Type())
	}
	if r.RubyText != "ねこ" || tree.TextContent(kids[1]) != "猫" {
		t.Errorf("unexpected ruby %q over %q", r.RubyText, tree.TextContent(kids[1]))
	}
	if got := content.ExtractText(tree); got != "吾輩は猫\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestInsertRubyNeedsRange(t *testing.T) {
	e := newEditor(t, "花")
	err := e.Update(func(tx *Tx) error { return tx.InsertRuby("はな") })
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestSetRubyText(t *testing.T) {
	e := newEditor(t, "花")
	selectRange(t, e, 0, 1)
	if err := e.Update(func(tx *Tx) error { return tx.InsertRuby("はな") }); err != nil {
		t.Fatalf("InsertRuby: %v", err)
	}
	if err := e.Update(func(tx *Tx) error { return tx.SetRubyText("かみ") }); err != nil {
		t.Fatalf("SetRubyText: %v", err)
	}
	tree := e.State()
	r, ok := tree.Get(tree.Parent(e.Selection().Key)).(*content.RubyNode)
	if !ok || r.RubyText != "かみ" {
		t.Fatalf("expected the gloss replaced, got %+v", r)
	}
}

func TestClearingRubyTextHeals(t *testing.T) {
	e := newEditor(t, "花")
	selectRange(t, e, 0, 1)
	if err := e.Update(func(tx *Tx) error { return tx.InsertRuby("はな") }); err != nil {
		t.Fatalf("InsertRuby: %v", err)
	}
	if err := e.Update(func(tx *Tx) error { return tx.SetRubyText(" ") }); err != nil {
		t.Fatalf("SetRubyText: %v", err)
	}
	tree := e.State()
	p := tree.Children(tree.Root())[0]
	for _, k := range tree.Children(p) {
		if content.IsRuby(tree.Get(k)) {
			t.Fatal("blank gloss should remove the ruby")
		}
	}
	txt, ok := tree.Get(e.Selection().Key).(*content.TextNode)
	if !ok || txt.Text != "花" {
		t.Errorf("expected the selection on base text 花, got %+v", e.Selection())
	}
	if got := content.ExtractText(tree); got != "花\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestClearingRubyBaseAndTextRemovesIt(t *testing.T) {
	e := newEditor(t, "花")
	selectRange(t, e, 0, 1)
	if err := e.Update(func(tx *Tx) error { return tx.InsertRuby("はな") }); err != nil {
		t.Fatalf("InsertRuby: %v", err)
	}
	if err := e.Update(func(tx *Tx) error { return tx.DeleteRange() }); err != nil {
		t.Fatalf("DeleteRange: %v", err)
	}
	if err := e.Update(func(tx *Tx) error { return tx.SetRubyText("") }); err != nil {
		t.Fatalf("SetRubyText: %v", err)
	}
	tree := e.State()
	p := tree.Children(tree.Root())[0]
	if kids := tree.Children(p); len(kids) != 0 {
		t.Errorf("expected the ruby removed, %d children left", len(kids))
	}
	if got := content.ExtractText(tree); got != "\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestSetRubyTextOutsideRuby(t *testing.T) {
	e := newEditor(t, "花")
	err := e.Update(func(tx *Tx) error { return tx.SetRubyText("はな") })
	if !errors.Is(err, ErrBadSelection) {
		t.Fatalf("expected ErrBadSelection, got %v", err)
	}
}

func TestToggleTateChuYoko(t *testing.T) {
	e := newEditor(t, "第12話")
	selectRange(t, e, 1, 3)

	if err := e.Update(func(tx *Tx) error { return tx.ToggleTateChuYoko() }); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	tree := e.State()
	sel := e.Selection()
	if !content.IsTateChuYoko(tree.Get(tree.Parent(sel.Key))) {
		t.Fatal("selection should sit inside the tate-chu-yoko")
	}

	if err := e.Update(func(tx *Tx) error { return tx.ToggleTateChuYoko() }); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	tree = e.State()
	sel = e.Selection()
	txt, ok := tree.Get(sel.Key).(*content.TextNode)
	if !ok || txt.Text != "12" {
		t.Fatalf("selection should move to the unwrapped text, got %+v", sel)
	}
	if sel.Start != 0 || sel.End != 2 {
		t.Errorf("expected whole text selected, got %+v", sel)
	}
	if got := content.ExtractText(tree); got != "第12話\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestInsertAuthor(t *testing.T) {
	e := newEditor(t, "本文")
	if err := e.Update(func(tx *Tx) error { return tx.InsertAuthor(" ") }); !errors.Is(err, ErrEmptyAnnotation) {
		t.Fatalf("expected ErrEmptyAnnotation, got %v", err)
	}
	if err := e.Update(func(tx *Tx) error { return tx.InsertAuthor("夏目漱石") }); err != nil {
		t.Fatalf("InsertAuthor: %v", err)
	}
	tree := e.State()
	blocks := tree.Children(tree.Root())
	if len(blocks) != 2 || !content.IsAuthor(tree.Get(blocks[1])) {
		t.Fatalf("expected author after the paragraph, got %d blocks", len(blocks))
	}
	if got := content.ExtractText(tree); got != "本文\n夏目漱石\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestSetBlockType(t *testing.T) {
	e := newEditor(t, "題")
	if err := e.Update(func(tx *Tx) error { return tx.SetBlockType("h2") }); err != nil {
		t.Fatalf("SetBlockType: %v", err)
	}
	tree := e.State()
	h, ok := tree.Get(tree.Children(tree.Root())[0]).(*content.HeadingNode)
	if !ok || h.Tag != "h2" {
		t.Fatalf("expected h2 heading")
	}
	if got := tree.TextContent(h.Key()); got != "題" {
		t.Errorf("children should move, got %q", got)
	}
	if err := e.Update(func(tx *Tx) error { return tx.SetBlockType("blockquote") }); !errors.Is(err, ErrUnsupportedBlock) {
		t.Errorf("expected ErrUnsupportedBlock, got %v", err)
	}
}

func TestFormatTextTogglesRange(t *testing.T) {
	e := newEditor(t, "強調する")
	selectRange(t, e, 0, 2)
	if err := e.Update(func(tx *Tx) error { return tx.FormatText(content.FormatBold) }); err != nil {
		t.Fatalf("FormatText: %v", err)
	}
	tree := e.State()
	bold := tree.Get(e.Selection().Key).(*content.TextNode)
	if bold.Text != "強調" || !bold.TextFormat.Has(content.FormatBold) {
		t.Errorf("unexpected formatted node %q format=%d", bold.Text, bold.TextFormat)
	}
	if err := e.Update(func(tx *Tx) error { return tx.FormatText(content.FormatBold) }); err != nil {
		t.Fatalf("FormatText: %v", err)
	}
	if tree := e.State(); tree.Get(e.Selection().Key).(*content.TextNode).TextFormat.Has(content.FormatBold) {
		t.Error("second toggle should clear bold")
	}
}

func TestInsertParagraphSplitsAtCaret(t *testing.T) {
	e := newEditor(t, "春夏")
	selectRange(t, e, 1, 1)
	if err := e.Update(func(tx *Tx) error { return tx.InsertParagraph() }); err != nil {
		t.Fatalf("InsertParagraph: %v", err)
	}
	if got := content.ExtractText(e.State()); got != "春\n夏\n" {
		t.Errorf("unexpected text %q", got)
	}
	if err := e.Update(func(tx *Tx) error { return tx.InsertText("秋") }); err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	if got := content.ExtractText(e.State()); got != "春\n秋夏\n" {
		t.Errorf("caret should be at the start of the new paragraph, got %q", got)
	}
}

func TestInsertLineBreak(t *testing.T) {
	e := newEditor(t, "春夏")
	selectRange(t, e, 1, 1)
	if err := e.Update(func(tx *Tx) error { return tx.InsertLineBreak() }); err != nil {
		t.Fatalf("InsertLineBreak: %v", err)
	}
	if got := content.ExtractText(e.State()); got != "春\n夏\n" {
		t.Errorf("unexpected text %q", got)
	}
	if st := content.Measure(e.State()); st.Lines != 2 || st.Characters != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestUndoRedo(t *testing.T) {
	e := newEditor(t, "一")
	if err := e.Update(func(tx *Tx) error { return tx.InsertText("二") }); err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got := content.ExtractText(e.State()); got != "一\n" {
		t.Errorf("after undo got %q", got)
	}
	if err := e.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if got := content.ExtractText(e.State()); got != "一二\n" {
		t.Errorf("after redo got %q", got)
	}
	if err := e.Redo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestLoadKeepsStateOnCorruptBlob(t *testing.T) {
	e := newEditor(t, "保持")
	before := e.State()
	if err := e.Load([]byte("{oops")); !errors.Is(err, content.ErrCorruptContent) {
		t.Fatalf("expected ErrCorruptContent, got %v", err)
	}
	if e.State() != before {
		t.Error("corrupt load must not replace the tree")
	}
}

func TestUnregisterListener(t *testing.T) {
	e := newEditor(t, "")
	calls := 0
	stop := e.RegisterUpdateListener(func(UpdateEvent) { calls++ })
	stop()
	if err := e.Update(func(tx *Tx) error { return tx.InsertText("x") }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 0 {
		t.Errorf("removed listener was called %d times", calls)
	}
}

// selectText selects [start,end) of the text node whose text is exactly s.
func selectText(t *testing.T, e *Editor, s string, start, end int) {
	t.Helper()
	tree := e.State()
	for _, k := range tree.TextNodes() {
		if tn := tree.Get(k).(*content.TextNode); tn.Text == s {
			if err := e.Select(Selection{Key: k, Start: start, End: end}); err != nil {
				t.Fatalf("Select: %v", err)
			}
			return
		}
	}
	t.Fatalf("no text node %q", s)
}

func TestEditedDocumentRoundTrips(t *testing.T) {
	e := newEditor(t, "吾輩は猫である12")
	selectRange(t, e, 0, 2)
	steps := []struct {
		name string
		sel  func()
		edit func(tx *Tx) error
	}{
		{"ruby", nil, func(tx *Tx) error { return tx.InsertRuby("わがはい") }},
		{"tate-chu-yoko", func() { selectText(t, e, "は猫である12", 5, 7) }, (*Tx).ToggleTateChuYoko},
		{"format", func() { selectText(t, e, "は猫である", 1, 2) }, func(tx *Tx) error { return tx.FormatText(content.FormatBold) }},
		{"delete", func() { selectText(t, e, "である", 0, 1) }, (*Tx).DeleteRange},
		{"line break", func() { selectText(t, e, "ある", 2, 2) }, (*Tx).InsertLineBreak},
		{"author", nil, func(tx *Tx) error { return tx.InsertAuthor("夏目漱石") }},
	}
	for _, st := range steps {
		if st.sel != nil {
			st.sel()
		}
		if err := e.Update(st.edit); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
	}
	if got := content.ExtractText(e.State()); got != "吾輩は猫ある\n12\n夏目漱石\n" {
		t.Fatalf("unexpected text %q", got)
	}

	first, err := e.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	back, err := content.Deserialize(e.Registry(), first)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	second, err := e.Registry().Serialize(back)
	if err != nil {
		t.Fatalf("Serialize again: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("round trip changed the blob:\n%s\n%s", first, second)
	}
	if content.ExtractText(back) != content.ExtractText(e.State()) {
		t.Error("round trip changed the text")
	}
}
