package content

import "strings"

// RubyNode annotates its child text (the base) with a phonetic gloss.
type RubyNode struct {
	nodeMeta
	RubyText string
}

// NewRuby returns a detached ruby node. Append text children for the base.
func NewRuby(rubyText string) *RubyNode {
	return &RubyNode{RubyText: rubyText}
}

func (*RubyNode) Type() NodeType  { return TypeRuby }
func (*RubyNode) IsInline() bool  { return true }
func (*RubyNode) IsElement() bool { return true }
func (n *RubyNode) copyNode() Node {
	c := *n
	c.nodeMeta = n.nodeMeta.clone()
	return &c
}

// IsRuby reports whether n is a ruby node.
func IsRuby(n Node) bool {
	_, ok := n.(*RubyNode)
	return ok
}

func blankGloss(s string) bool { return strings.TrimSpace(s) == "" }

// SetRubyText replaces the gloss of a ruby node and heals it.
func (t *Tree) SetRubyText(key NodeKey, rubyText string) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	r, ok := n.(*RubyNode)
	if !ok {
		return wrongType(key, TypeRuby, n.Type())
	}
	if r.RubyText != rubyText {
		r.RubyText = rubyText
		t.markDirty()
	}
	t.HealRuby(key)
	return nil
}

// HealRuby enforces the ruby invariant on key. A ruby whose gloss is blank is
// replaced by a text node carrying its base text, or removed when it has no
// text left. Healing is idempotent and leaves the tree untouched (and clean)
// when nothing needs to change. It reports whether the node was rewritten.
func (t *Tree) HealRuby(key NodeKey) bool {
	n, ok := t.nodes[key]
	if !ok {
		return false
	}
	r, ok := n.(*RubyNode)
	if !ok || !blankGloss(r.RubyText) {
		return false
	}
	if r.parent == "" {
		// Detached rubies are healed once they are attached.
		return false
	}
	base := t.TextContent(key)
	if base == "" {
		t.removeSubtree(key)
		return true
	}
	txt := NewText(base)
	if first := t.firstText(key); first != nil {
		txt.TextFormat = first.TextFormat
		txt.Style = first.Style
	}
	_ = t.replaceWith(key, t.Create(txt))
	return true
}

// healAround re-checks every ruby on the path from key to the root.
func (t *Tree) healAround(key NodeKey) {
	for k := key; k != ""; {
		n, ok := t.nodes[k]
		if !ok {
			return
		}
		next := n.Parent()
		if n.Type() == TypeRuby {
			t.HealRuby(k)
		}
		k = next
	}
}

func (t *Tree) firstText(key NodeKey) *TextNode {
	var found *TextNode
	t.Walk(key, func(n Node) bool {
		if tn, ok := n.(*TextNode); ok && found == nil {
			found = tn
		}
		return found == nil
	})
	return found
}
