package content

// TateChuYokoNode renders its short text children upright and horizontal
// inside the vertical flow.
type TateChuYokoNode struct{ nodeMeta }

// NewTateChuYoko returns a detached, empty tate-chu-yoko node.
func NewTateChuYoko() *TateChuYokoNode { return &TateChuYokoNode{} }

func (*TateChuYokoNode) Type() NodeType   { return TypeTateChuYoko }
func (*TateChuYokoNode) IsInline() bool   { return true }
func (*TateChuYokoNode) IsElement() bool  { return true }
func (n *TateChuYokoNode) copyNode() Node { return &TateChuYokoNode{nodeMeta: n.nodeMeta.clone()} }

// IsTateChuYoko reports whether n is a tate-chu-yoko node.
func IsTateChuYoko(n Node) bool {
	_, ok := n.(*TateChuYokoNode)
	return ok
}

// Unwrap replaces an inline element (tate-chu-yoko or ruby) with one text
// node carrying the same text content and returns the new node's key.
func (t *Tree) Unwrap(key NodeKey) (NodeKey, error) {
	n, err := t.mustGet(key)
	if err != nil {
		return "", err
	}
	if !n.IsElement() || !n.IsInline() {
		return "", wrongType(key, TypeTateChuYoko, n.Type())
	}
	txt := NewText(t.TextContent(key))
	if first := t.firstText(key); first != nil {
		txt.TextFormat = first.TextFormat
		txt.Style = first.Style
	}
	nk := t.Create(txt)
	if err := t.replaceWith(key, nk); err != nil {
		return "", err
	}
	return nk, nil
}
