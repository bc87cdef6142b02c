// Package doctree assembles content trees from importers. Importers emit
// blocks and inline runs in reading order; the builder takes care of
// containment and text normalization.
package doctree

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/tategaki/internal/content"
)

// Builder accumulates a document. The zero value is not usable; call New.
type Builder struct {
	t *content.Tree
	// block is the open block, or "" between blocks.
	block content.NodeKey
	// inline is the open tate-chu-yoko run, or "".
	inline content.NodeKey
}

// New returns a builder over an empty tree.
func New() *Builder {
	return &Builder{t: content.NewTree()}
}

func (b *Builder) open(n content.Node) content.NodeKey {
	b.Close()
	k := b.t.Create(n)
	// The root accepts every block type.
	_ = b.t.Append(b.t.Root(), k)
	b.block = k
	return k
}

// Paragraph opens a new paragraph.
func (b *Builder) Paragraph() { b.open(content.NewParagraph()) }

// Heading opens a heading block. Levels are clamped to 1..6.
func (b *Builder) Heading(level int) {
	level = min(max(level, 1), 6)
	b.open(content.NewHeading("h" + strconv.Itoa(level)))
}

// Author appends an attribution block and closes it.
func (b *Builder) Author(text string) {
	b.open(content.NewAuthor(Normalize(strings.TrimSpace(text))))
	b.Close()
}

// Close ends the open block.
func (b *Builder) Close() {
	b.EndTateChuYoko()
	b.block = ""
}

// InBlock reports whether a block is open.
func (b *Builder) InBlock() bool { return b.block != "" }

func (b *Builder) container() content.NodeKey {
	if b.inline != "" {
		return b.inline
	}
	if b.block == "" {
		b.Paragraph()
	}
	return b.block
}

// Text appends s to the open container, opening a paragraph when needed.
func (b *Builder) Text(s string) { b.Styled(s, 0) }

// Styled appends s with inline formatting. Adjacent runs with the same
// format are merged.
func (b *Builder) Styled(s string, f content.TextFormat) {
	if s == "" {
		return
	}
	s = Normalize(s)
	parent := b.container()
	if kids := b.t.Children(parent); len(kids) > 0 {
		if tn, ok := b.t.Get(kids[len(kids)-1]).(*content.TextNode); ok && tn.TextFormat == f {
			_ = b.t.SetText(tn.Key(), tn.Text+s)
			return
		}
	}
	tn := content.NewText(s)
	tn.TextFormat = f
	_ = b.t.Append(parent, b.t.Create(tn))
}

// Ruby appends base annotated with gloss. A blank gloss appends plain text.
func (b *Builder) Ruby(base, gloss string) {
	if strings.TrimSpace(gloss) == "" || base == "" {
		b.Text(base)
		return
	}
	if b.inline != "" {
		// Ruby cannot nest inside tate-chu-yoko; keep the base text.
		b.Text(base)
		return
	}
	parent := b.container()
	r := b.t.Create(content.NewRuby(Normalize(gloss)))
	_ = b.t.Append(r, b.t.Create(content.NewText(Normalize(base))))
	_ = b.t.Append(parent, r)
}

// TakeTrailing removes the longest suffix of the last text run whose runes
// all satisfy keep, and returns it. Nothing is removed when the open
// container does not end in text.
func (b *Builder) TakeTrailing(keep func(rune) bool) string {
	var parent content.NodeKey
	switch {
	case b.inline != "":
		parent = b.inline
	case b.block != "":
		parent = b.block
	default:
		return ""
	}
	kids := b.t.Children(parent)
	if len(kids) == 0 {
		return ""
	}
	tn, ok := b.t.Get(kids[len(kids)-1]).(*content.TextNode)
	if !ok {
		return ""
	}
	cut := len(tn.Text)
	for cut > 0 {
		r, size := utf8.DecodeLastRuneInString(tn.Text[:cut])
		if !keep(r) {
			break
		}
		cut -= size
	}
	tail := tn.Text[cut:]
	if tail == "" {
		return ""
	}
	if cut == 0 {
		_ = b.t.Remove(tn.Key())
	} else {
		_ = b.t.SetText(tn.Key(), tn.Text[:cut])
	}
	return tail
}

// BeginTateChuYoko opens an upright run in the open block.
func (b *Builder) BeginTateChuYoko() {
	if b.inline != "" {
		return
	}
	parent := b.container()
	k := b.t.Create(content.NewTateChuYoko())
	_ = b.t.Append(parent, k)
	b.inline = k
}

// EndTateChuYoko closes the upright run.
func (b *Builder) EndTateChuYoko() { b.inline = "" }

// LineBreak appends a hard break to the open block.
func (b *Builder) LineBreak() {
	b.EndTateChuYoko()
	parent := b.container()
	_ = b.t.Append(parent, b.t.Create(content.NewLineBreak()))
}

// Tree finishes the document. Empty inline wrappers are dropped and a
// document without blocks gets one empty paragraph.
func (b *Builder) Tree() *content.Tree {
	b.Close()
	var empty []content.NodeKey
	b.t.Walk(b.t.Root(), func(n content.Node) bool {
		if n.Type() == content.TypeTateChuYoko && len(b.t.Children(n.Key())) == 0 {
			empty = append(empty, n.Key())
		}
		return true
	})
	for _, k := range empty {
		_ = b.t.Remove(k)
	}
	b.t.Prune()
	if len(b.t.Children(b.t.Root())) == 0 {
		b.Paragraph()
		b.Close()
	}
	b.t.ClearDirty()
	return b.t
}

// Normalize returns s in Unicode NFC.
func Normalize(s string) string {
	return norm.NFC.String(s)
}
