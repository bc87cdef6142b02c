package editor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/tategaki/internal/content"
)

var (
	ErrNoSelection      = errors.New("editor: no selection")
	ErrEmptySelection   = errors.New("editor: selection is collapsed")
	ErrBadSelection     = errors.New("editor: selection out of range")
	ErrEmptyAnnotation  = errors.New("editor: annotation text is blank")
	ErrUnsupportedBlock = errors.New("editor: unsupported block type")
)

// Selection is a range of rune offsets inside one text node. Start == End
// is a caret.
type Selection struct {
	Key   content.NodeKey `json:"key"`
	Start int             `json:"start"`
	End   int             `json:"end"`
}

// Collapsed reports whether the selection is a caret.
func (s Selection) Collapsed() bool { return s.Start == s.End }

// Select moves the selection. It is validated against the committed tree.
func (e *Editor) Select(sel Selection) error {
	return e.Update(func(tx *Tx) error {
		if _, err := tx.text(sel); err != nil {
			return err
		}
		tx.Selection = sel
		return nil
	})
}

func (tx *Tx) text(sel Selection) (*content.TextNode, error) {
	if sel.Key == "" {
		return nil, ErrNoSelection
	}
	n, ok := tx.Tree.Get(sel.Key).(*content.TextNode)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a text node", ErrBadSelection, sel.Key)
	}
	l := utf8.RuneCountInString(n.Text)
	if sel.Start < 0 || sel.End < sel.Start || sel.End > l {
		return nil, fmt.Errorf("%w: [%d,%d) in %d runes", ErrBadSelection, sel.Start, sel.End, l)
	}
	return n, nil
}

func (tx *Tx) requirePlugin(name string, typ content.NodeType) error {
	if tx.editor.HasPlugin(name) {
		return nil
	}
	return &content.ConfigError{Type: typ, Reason: name + " plugin not registered on editor"}
}

// caret returns the text node for a caret, creating one at the end of the
// document when there is no selection.
func (tx *Tx) caret() (*content.TextNode, error) {
	if tx.Selection.Key != "" {
		return tx.text(tx.Selection)
	}
	t := tx.Tree
	blocks := t.Children(t.Root())
	var block content.NodeKey
	for i := len(blocks) - 1; i >= 0; i-- {
		if !content.IsAuthor(t.Get(blocks[i])) {
			block = blocks[i]
			break
		}
	}
	if block == "" {
		block = t.Create(content.NewParagraph())
		if err := t.Append(t.Root(), block); err != nil {
			return nil, err
		}
	}
	kids := t.Children(block)
	if len(kids) > 0 {
		if tn, ok := t.Get(kids[len(kids)-1]).(*content.TextNode); ok {
			l := utf8.RuneCountInString(tn.Text)
			tx.Selection = Selection{Key: tn.Key(), Start: l, End: l}
			return tn, nil
		}
	}
	k := t.Create(content.NewText(""))
	if err := t.Append(block, k); err != nil {
		return nil, err
	}
	tx.Selection = Selection{Key: k}
	return t.Get(k).(*content.TextNode), nil
}

// isolate splits the selected range into its own text node and returns it.
func (tx *Tx) isolate() (content.NodeKey, error) {
	sel := tx.Selection
	n, err := tx.text(sel)
	if err != nil {
		return "", err
	}
	if sel.Collapsed() {
		return "", ErrEmptySelection
	}
	parts, err := tx.Tree.SplitText(n.Key(), sel.Start, sel.End)
	if err != nil {
		return "", err
	}
	mid := parts[0]
	if sel.Start > 0 {
		mid = parts[1]
	}
	l := sel.End - sel.Start
	tx.Selection = Selection{Key: mid, Start: 0, End: l}
	return mid, nil
}

func spliceRunes(s string, start, end int, insert string) string {
	r := []rune(s)
	return string(r[:start]) + insert + string(r[end:])
}

// InsertText replaces the selection with text and leaves a caret after it.
func (tx *Tx) InsertText(text string) error {
	n, err := tx.caret()
	if err != nil {
		return err
	}
	sel := tx.Selection
	if err := tx.Tree.SetText(n.Key(), spliceRunes(n.Text, sel.Start, sel.End, text)); err != nil {
		return err
	}
	at := sel.Start + utf8.RuneCountInString(text)
	tx.Selection = Selection{Key: n.Key(), Start: at, End: at}
	return nil
}

// DeleteRange removes the selected text.
func (tx *Tx) DeleteRange() error {
	n, err := tx.text(tx.Selection)
	if err != nil {
		return err
	}
	sel := tx.Selection
	if sel.Collapsed() {
		return nil
	}
	if err := tx.Tree.SetText(n.Key(), spliceRunes(n.Text, sel.Start, sel.End, "")); err != nil {
		return err
	}
	tx.Selection = Selection{Key: n.Key(), Start: sel.Start, End: sel.Start}
	return nil
}

// FormatText toggles an inline format over the selection.
func (tx *Tx) FormatText(f content.TextFormat) error {
	k, err := tx.isolate()
	if err != nil {
		return err
	}
	n := tx.Tree.Get(k).(*content.TextNode)
	return tx.Tree.SetTextFormat(k, n.TextFormat.Toggle(f))
}

// SetBlockType converts the block holding the selection. tag is "paragraph"
// or a heading tag h1..h6.
func (tx *Tx) SetBlockType(tag string) error {
	if tx.Selection.Key == "" {
		return ErrNoSelection
	}
	t := tx.Tree
	block := t.Block(tx.Selection.Key)
	if block == "" {
		return fmt.Errorf("%w: selection is not inside a block", ErrBadSelection)
	}
	old := t.Get(block)
	var repl content.Node
	switch {
	case tag == "paragraph":
		if old.Type() == content.TypeParagraph {
			return nil
		}
		repl = content.NewParagraph()
	case strings.HasPrefix(tag, "h") && len(tag) == 2 && tag[1] >= '1' && tag[1] <= '6':
		if h, ok := old.(*content.HeadingNode); ok && h.Tag == tag {
			return nil
		}
		repl = content.NewHeading(tag)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBlock, tag)
	}
	if content.IsAuthor(old) {
		return fmt.Errorf("%w: author blocks cannot be converted", ErrUnsupportedBlock)
	}
	nk := t.Create(repl)
	if err := t.MoveChildren(block, nk); err != nil {
		return err
	}
	return t.Replace(block, nk)
}

func (tx *Tx) wrap(el content.Node) (content.NodeKey, error) {
	mid, err := tx.isolate()
	if err != nil {
		return "", err
	}
	w := tx.Tree.Create(el)
	if err := tx.Tree.InsertBefore(mid, w); err != nil {
		return "", err
	}
	if err := tx.Tree.Append(w, mid); err != nil {
		return "", err
	}
	return w, nil
}

// InsertRuby wraps the selection in a ruby carrying gloss.
func (tx *Tx) InsertRuby(gloss string) error {
	if err := tx.requirePlugin(content.PluginRuby, content.TypeRuby); err != nil {
		return err
	}
	if strings.TrimSpace(gloss) == "" {
		return ErrEmptyAnnotation
	}
	_, err := tx.wrap(content.NewRuby(gloss))
	return err
}

// SetRubyText replaces the gloss of the ruby holding the selection. A blank
// gloss turns the ruby back into its base text, or removes it when the base
// text is empty as well.
func (tx *Tx) SetRubyText(gloss string) error {
	if err := tx.requirePlugin(content.PluginRuby, content.TypeRuby); err != nil {
		return err
	}
	if _, err := tx.text(tx.Selection); err != nil {
		return err
	}
	t := tx.Tree
	ruby := t.Parent(tx.Selection.Key)
	for ruby != "" && !content.IsRuby(t.Get(ruby)) {
		ruby = t.Parent(ruby)
	}
	if ruby == "" {
		return fmt.Errorf("%w: selection is not inside a ruby", ErrBadSelection)
	}
	parent, idx, base := t.Parent(ruby), t.IndexOf(ruby), t.TextContent(ruby)
	if err := t.SetRubyText(ruby, gloss); err != nil {
		return err
	}
	if t.Get(tx.Selection.Key) != nil {
		return nil
	}
	tx.Selection = Selection{}
	kids := t.Children(parent)
	if idx >= len(kids) {
		return nil
	}
	if tn, ok := t.Get(kids[idx]).(*content.TextNode); ok {
		l := 0
		if base != "" {
			l = utf8.RuneCountInString(tn.Text)
		}
		tx.Selection = Selection{Key: tn.Key(), Start: 0, End: l}
	}
	return nil
}

// ToggleTateChuYoko unwraps the tate-chu-yoko holding the selection, or
// wraps the selection in a new one.
func (tx *Tx) ToggleTateChuYoko() error {
	if err := tx.requirePlugin(content.PluginTateChuYoko, content.TypeTateChuYoko); err != nil {
		return err
	}
	if _, err := tx.text(tx.Selection); err != nil {
		return err
	}
	t := tx.Tree
	if p := t.Parent(tx.Selection.Key); p != "" && content.IsTateChuYoko(t.Get(p)) {
		nk, err := t.Unwrap(p)
		if err != nil {
			return err
		}
		l := utf8.RuneCountInString(t.Get(nk).(*content.TextNode).Text)
		tx.Selection = Selection{Key: nk, Start: 0, End: l}
		return nil
	}
	_, err := tx.wrap(content.NewTateChuYoko())
	return err
}

// InsertAuthor adds an author block after the block holding the selection,
// or at the end of the document.
func (tx *Tx) InsertAuthor(text string) error {
	if err := tx.requirePlugin(content.PluginAuthor, content.TypeAuthor); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyAnnotation
	}
	t := tx.Tree
	a := t.Create(content.NewAuthor(text))
	if block := t.Block(tx.Selection.Key); block != "" {
		return t.InsertAfter(block, a)
	}
	return t.Append(t.Root(), a)
}

// InsertParagraph splits the block at the caret. Content after the caret
// moves to a new paragraph and the caret moves to its start.
func (tx *Tx) InsertParagraph() error {
	n, err := tx.caret()
	if err != nil {
		return err
	}
	if err := tx.DeleteRange(); err != nil {
		return err
	}
	t := tx.Tree
	key, at := n.Key(), tx.Selection.Start
	block := t.Block(key)
	inline := key
	for t.Parent(inline) != block {
		inline = t.Parent(inline)
	}
	kids := t.Children(block)
	idx := t.IndexOf(inline)
	tail := kids[idx+1:]
	if inline == key {
		parts, err := t.SplitText(key, at)
		if err != nil {
			return err
		}
		switch {
		case at == 0:
			tail = kids[idx:]
		case len(parts) > 1:
			tail = append([]content.NodeKey{parts[1]}, tail...)
		}
	}
	np := t.Create(content.NewParagraph())
	if err := t.InsertAfter(block, np); err != nil {
		return err
	}
	for _, k := range tail {
		if err := t.Append(np, k); err != nil {
			return err
		}
	}
	var first content.NodeKey
	if kids := t.Children(np); len(kids) > 0 {
		if _, ok := t.Get(kids[0]).(*content.TextNode); ok {
			first = kids[0]
		}
	}
	if first == "" {
		first = t.Create(content.NewText(""))
		if err := t.Splice(np, 0, 0, first); err != nil {
			return err
		}
	}
	tx.Selection = Selection{Key: first}
	return nil
}

// InsertLineBreak puts a hard line break at the caret.
func (tx *Tx) InsertLineBreak() error {
	n, err := tx.caret()
	if err != nil {
		return err
	}
	if err := tx.DeleteRange(); err != nil {
		return err
	}
	t := tx.Tree
	if content.IsRuby(t.Get(n.Parent())) || content.IsTateChuYoko(t.Get(n.Parent())) {
		return fmt.Errorf("%w: cannot break inside an annotation", ErrBadSelection)
	}
	parts, err := t.SplitText(n.Key(), tx.Selection.Start)
	if err != nil {
		return err
	}
	br := t.Create(content.NewLineBreak())
	if tx.Selection.Start == 0 {
		if err := t.InsertBefore(n.Key(), br); err != nil {
			return err
		}
		tx.Selection = Selection{Key: n.Key()}
		return nil
	}
	if err := t.InsertAfter(parts[0], br); err != nil {
		return err
	}
	if len(parts) > 1 {
		tx.Selection = Selection{Key: parts[1]}
		return nil
	}
	tail := t.Create(content.NewText(""))
	if err := t.InsertAfter(br, tail); err != nil {
		return err
	}
	tx.Selection = Selection{Key: tail}
	return nil
}
