// Package surface lays a content tree out in vertical-rl columns and
// answers the geometry queries of the pagination engine.
//
// Coordinates follow a browser viewport: x grows to the right, y grows
// down, and the first column hugs the container's right edge. Scrolling a
// vertical-rl container towards later columns makes ScrollLeft negative.
package surface

import (
	"fmt"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/pagination"
)

// Viewport describes the writing surface.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// ScrollLeft is zero at the start of the document and negative once
	// scrolled towards later columns.
	ScrollLeft float64 `json:"scrollLeft"`
	FontSize   float64 `json:"fontSize"`
	LineHeight float64 `json:"lineHeight"`
}

// Defaults used when a Viewport leaves typography unset.
const (
	DefaultFontSize   = 16
	DefaultLineHeight = 1.75
)

func (v Viewport) normalized() Viewport {
	if v.FontSize <= 0 {
		v.FontSize = DefaultFontSize
	}
	if v.LineHeight <= 0 {
		v.LineHeight = DefaultLineHeight
	}
	return v
}

// headingScale is the font scale of each heading level.
var headingScale = map[string]float64{"h1": 1.5, "h2": 1.3, "h3": 1.15}

// Layout is the measured geometry of one tree. It is immutable.
type Layout struct {
	vp      Viewport
	runs    map[content.NodeKey]pagination.ElementKey
	boxes   map[pagination.ElementKey]pagination.Rect
	columns int
	extent  float64
}

var _ pagination.GeometryProvider = (*Layout)(nil)

// Lay measures t. A viewport without height produces an empty layout.
func Lay(t *content.Tree, vp Viewport, m Measurer) *Layout {
	vp = vp.normalized()
	l := &Layout{
		vp:    vp,
		runs:  make(map[content.NodeKey]pagination.ElementKey),
		boxes: make(map[pagination.ElementKey]pagination.Rect),
	}
	if vp.Height <= 0 || vp.Width <= 0 {
		return l
	}
	p := &pen{l: l, m: m, right: vp.Width}
	for _, block := range t.Children(t.Root()) {
		p.block(t, block)
	}
	l.columns = p.columns
	l.extent = vp.Width - p.right + p.colW
	return l
}

// pen walks the tree placing glyphs column by column.
type pen struct {
	l       *Layout
	m       Measurer
	right   float64 // right edge of the current column
	colW    float64
	y       float64
	columns int
	size    float64
}

// newColumn closes the open column, if any, and opens one to its left.
func (p *pen) newColumn() {
	p.right -= p.colW
	p.columns++
	p.y = 0
	p.colW = p.size * p.l.vp.LineHeight
}

func (p *pen) block(t *content.Tree, key content.NodeKey) {
	n := t.Get(key)
	p.size = p.l.vp.FontSize
	if h, ok := n.(*content.HeadingNode); ok {
		if s, ok := headingScale[h.Tag]; ok {
			p.size *= s
		}
	}
	p.newColumn()
	chain := []pagination.ElementKey{elementKey(key)}
	p.extend(chain, p.box(0))
	if a, ok := n.(*content.AuthorNode); ok {
		// Attribution is set flush with the bottom of the column.
		adv := p.advance(a.AuthorText)
		if adv < p.l.vp.Height {
			p.y = p.l.vp.Height - adv
		}
		p.text(a.AuthorText, chain)
	}
	for _, c := range t.Children(key) {
		p.inline(t, c, chain)
	}
}

func (p *pen) inline(t *content.Tree, key content.NodeKey, chain []pagination.ElementKey) {
	switch n := t.Get(key).(type) {
	case *content.TextNode:
		p.l.runs[key] = chain[len(chain)-1]
		start := p.box(0)
		p.extend(chain, start)
		p.text(n.Text, chain)
	case *content.LineBreakNode:
		p.newColumn()
		p.extend(chain, p.box(0))
	case *content.TateChuYokoNode:
		inner := append(chain[:len(chain):len(chain)], elementKey(key))
		// The whole run sits upright in one em square.
		if p.y+p.size > p.l.vp.Height && p.y > 0 {
			p.newColumn()
		}
		for _, c := range t.Children(key) {
			if _, ok := t.Get(c).(*content.TextNode); ok {
				p.l.runs[c] = elementKey(key)
			}
		}
		p.extend(inner, p.box(p.size))
		p.y += p.size
	case *content.RubyNode:
		inner := append(chain[:len(chain):len(chain)], elementKey(key))
		for _, c := range t.Children(key) {
			p.inline(t, c, inner)
		}
	}
}

func (p *pen) advance(s string) float64 {
	var adv float64
	for _, r := range s {
		adv += p.m.Advance(r, p.size)
	}
	return adv
}

func (p *pen) text(s string, chain []pagination.ElementKey) {
	for _, r := range s {
		adv := p.m.Advance(r, p.size)
		if p.y+adv > p.l.vp.Height && p.y > 0 {
			p.newColumn()
		}
		p.extend(chain, p.box(adv))
		p.y += adv
	}
}

// box is the rectangle of a glyph of height h at the pen, in scrolled
// viewport coordinates.
func (p *pen) box(h float64) pagination.Rect {
	left := p.right - p.colW - p.l.vp.ScrollLeft
	return pagination.Rect{Left: left, Right: left + p.colW, Top: p.y, Bottom: p.y + h}
}

func (p *pen) extend(chain []pagination.ElementKey, r pagination.Rect) {
	for _, k := range chain {
		cur, ok := p.l.boxes[k]
		if !ok {
			p.l.boxes[k] = r
			continue
		}
		cur.Left = min(cur.Left, r.Left)
		cur.Right = max(cur.Right, r.Right)
		cur.Top = min(cur.Top, r.Top)
		cur.Bottom = max(cur.Bottom, r.Bottom)
		p.l.boxes[k] = cur
	}
}

func elementKey(k content.NodeKey) pagination.ElementKey { return pagination.ElementKey(k) }

func (l *Layout) ContainerHeight() float64 { return l.vp.Height }
func (l *Layout) ContainerRight() float64  { return l.vp.Width }
func (l *Layout) ViewportEdge() float64    { return l.vp.Width }
func (l *Layout) ScrollOffset() float64    { return l.vp.ScrollLeft }

// RunElement returns the element holding the text run key and its box.
func (l *Layout) RunElement(key content.NodeKey) (pagination.ElementKey, pagination.Rect, error) {
	el, ok := l.runs[key]
	if !ok {
		return "", pagination.Rect{}, fmt.Errorf("%w: run %s", pagination.ErrElementNotFound, key)
	}
	r, ok := l.boxes[el]
	if !ok {
		return "", pagination.Rect{}, fmt.Errorf("%w: element %s", pagination.ErrElementNotFound, el)
	}
	return el, r, nil
}

// Box returns the box of an element.
func (l *Layout) Box(el pagination.ElementKey) (pagination.Rect, bool) {
	r, ok := l.boxes[el]
	return r, ok
}

// Columns returns the number of columns used.
func (l *Layout) Columns() int { return l.columns }

// Extent returns the total horizontal extent of the content.
func (l *Layout) Extent() float64 { return l.extent }

// Viewport returns the viewport the layout was measured for.
func (l *Layout) Viewport() Viewport { return l.vp }
