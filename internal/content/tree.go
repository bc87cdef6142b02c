package content

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Tree is a rooted ordered tree of nodes. Ownership is top-down: parents
// hold child keys, children only remember their parent's key.
//
// A Tree is not safe for concurrent mutation. The editor mutates private
// snapshots and publishes them; published trees are treated as immutable.
type Tree struct {
	nodes map[NodeKey]Node
	root  NodeKey
	next  uint64
	dirty bool
}

// NewTree returns a tree holding only a root.
func NewTree() *Tree {
	t := &Tree{nodes: make(map[NodeKey]Node)}
	t.root = t.Create(&RootNode{})
	t.dirty = false
	return t
}

// NewDocument returns a tree with one empty paragraph, the state of a fresh
// document.
func NewDocument() *Tree {
	t := NewTree()
	p := t.Create(NewParagraph())
	_ = t.Append(t.root, p)
	t.dirty = false
	return t
}

// Create assigns a fresh key to a detached node and stores it in the tree.
func (t *Tree) Create(n Node) NodeKey {
	t.next++
	m := n.meta()
	m.key = NodeKey("n" + strconv.FormatUint(t.next, 10))
	m.parent = ""
	m.children = nil
	t.nodes[m.key] = n
	t.markDirty()
	return m.key
}

// Root returns the root key.
func (t *Tree) Root() NodeKey { return t.root }

// Get returns the node for key, or nil.
func (t *Tree) Get(key NodeKey) Node { return t.nodes[key] }

// Has reports whether key exists in the tree.
func (t *Tree) Has(key NodeKey) bool {
	_, ok := t.nodes[key]
	return ok
}

// Len returns the number of nodes, detached ones included.
func (t *Tree) Len() int { return len(t.nodes) }

// Children returns the ordered child keys of key.
func (t *Tree) Children(key NodeKey) []NodeKey {
	n, ok := t.nodes[key]
	if !ok {
		return nil
	}
	return n.meta().Children()
}

// Parent returns the parent key of key, or "" for the root and detached nodes.
func (t *Tree) Parent(key NodeKey) NodeKey {
	if n, ok := t.nodes[key]; ok {
		return n.Parent()
	}
	return ""
}

// Dirty reports whether the tree changed since the last ClearDirty.
func (t *Tree) Dirty() bool { return t.dirty }

// ClearDirty resets the change flag.
func (t *Tree) ClearDirty() { t.dirty = false }

func (t *Tree) markDirty() { t.dirty = true }

func (t *Tree) mustGet(key NodeKey) (Node, error) {
	n, ok := t.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, key)
	}
	return n, nil
}

// Walk visits key and its descendants in document order. Returning false from
// fn stops the walk.
func (t *Tree) Walk(key NodeKey, fn func(Node) bool) {
	t.walk(key, fn)
}

func (t *Tree) walk(key NodeKey, fn func(Node) bool) bool {
	n, ok := t.nodes[key]
	if !ok {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.meta().children {
		if !t.walk(c, fn) {
			return false
		}
	}
	return true
}

// TextNodes returns all attached text nodes in reading order.
func (t *Tree) TextNodes() []NodeKey {
	var out []NodeKey
	t.Walk(t.root, func(n Node) bool {
		if n.Type() == TypeText {
			out = append(out, n.Key())
		}
		return true
	})
	return out
}

// TextContent returns the visible text of key's subtree. Ruby glosses are
// not visible text; author blocks show their attribution.
func (t *Tree) TextContent(key NodeKey) string {
	var b strings.Builder
	t.textContent(key, &b)
	return b.String()
}

func (t *Tree) textContent(key NodeKey, b *strings.Builder) {
	n, ok := t.nodes[key]
	if !ok {
		return
	}
	switch v := n.(type) {
	case *TextNode:
		b.WriteString(v.Text)
		return
	case *LineBreakNode:
		b.WriteByte('\n')
		return
	case *AuthorNode:
		b.WriteString(v.AuthorText)
	}
	for _, c := range n.meta().children {
		t.textContent(c, b)
	}
}

// Block returns the nearest block-level ancestor of key (key itself included).
func (t *Tree) Block(key NodeKey) NodeKey {
	for k := key; k != ""; k = t.Parent(k) {
		n := t.nodes[k]
		if n == nil {
			return ""
		}
		if IsBlock(n) {
			return k
		}
	}
	return ""
}

// IndexOf returns the position of key among its siblings, or -1.
func (t *Tree) IndexOf(key NodeKey) int {
	n, ok := t.nodes[key]
	if !ok || n.Parent() == "" {
		return -1
	}
	return slices.Index(t.nodes[n.Parent()].meta().children, key)
}

// canContain enforces block/inline containment: the root holds blocks,
// blocks hold inline nodes, inline elements hold leaves.
func canContain(parent, child Node) bool {
	switch parent.Type() {
	case TypeRoot:
		return IsBlock(child)
	case TypeParagraph, TypeHeading, TypeAuthor:
		return child.IsInline()
	case TypeRuby, TypeTateChuYoko:
		return !child.IsElement()
	}
	return false
}

func (t *Tree) isAncestor(anc, key NodeKey) bool {
	for k := key; k != ""; k = t.Parent(k) {
		if k == anc {
			return true
		}
	}
	return false
}

// prepareInsert validates that child may go under parent and detaches it
// from any previous parent.
func (t *Tree) prepareInsert(parentKey, childKey NodeKey) (Node, Node, error) {
	parent, err := t.mustGet(parentKey)
	if err != nil {
		return nil, nil, err
	}
	child, err := t.mustGet(childKey)
	if err != nil {
		return nil, nil, err
	}
	if childKey == t.root || t.isAncestor(childKey, parentKey) {
		return nil, nil, fmt.Errorf("%w: %s cannot be placed under %s", ErrInvalidChild, childKey, parentKey)
	}
	if !canContain(parent, child) {
		return nil, nil, fmt.Errorf("%w: %s cannot contain %s", ErrInvalidChild, parent.Type(), child.Type())
	}
	if old := child.Parent(); old != "" {
		t.detach(childKey)
		defer t.healAround(old)
	}
	return parent, child, nil
}

// detach unlinks key from its parent without deleting it.
func (t *Tree) detach(key NodeKey) {
	n := t.nodes[key]
	p, ok := t.nodes[n.Parent()]
	if ok {
		m := p.meta()
		if i := slices.Index(m.children, key); i >= 0 {
			m.children = slices.Delete(m.children, i, i+1)
		}
	}
	n.meta().parent = ""
	t.markDirty()
}

func (t *Tree) insertAt(parentKey NodeKey, idx int, childKey NodeKey) error {
	parent, child, err := t.prepareInsert(parentKey, childKey)
	if err != nil {
		return err
	}
	m := parent.meta()
	if idx < 0 || idx > len(m.children) {
		idx = len(m.children)
	}
	m.children = slices.Insert(m.children, idx, childKey)
	child.meta().parent = parentKey
	t.markDirty()
	t.healAround(childKey)
	return nil
}

// Append adds child as the last child of parent.
func (t *Tree) Append(parent, child NodeKey) error {
	return t.insertAt(parent, -1, child)
}

// InsertBefore places node immediately before ref.
func (t *Tree) InsertBefore(ref, node NodeKey) error {
	p := t.Parent(ref)
	if p == "" {
		return fmt.Errorf("%w: %s has no parent", ErrInvalidChild, ref)
	}
	if t.Parent(node) == p {
		t.detach(node)
	}
	return t.insertAt(p, t.IndexOf(ref), node)
}

// InsertAfter places node immediately after ref.
func (t *Tree) InsertAfter(ref, node NodeKey) error {
	p := t.Parent(ref)
	if p == "" {
		return fmt.Errorf("%w: %s has no parent", ErrInvalidChild, ref)
	}
	if t.Parent(node) == p {
		t.detach(node)
	}
	return t.insertAt(p, t.IndexOf(ref)+1, node)
}

// Remove deletes key and its subtree.
func (t *Tree) Remove(key NodeKey) error {
	if _, err := t.mustGet(key); err != nil {
		return err
	}
	if key == t.root {
		return fmt.Errorf("%w: the root cannot be removed", ErrInvalidChild)
	}
	t.removeSubtree(key)
	return nil
}

func (t *Tree) removeSubtree(key NodeKey) {
	parent := t.Parent(key)
	if parent != "" {
		t.detach(key)
	}
	t.deleteSubtree(key)
	t.markDirty()
	t.healAround(parent)
}

func (t *Tree) deleteSubtree(key NodeKey) {
	n, ok := t.nodes[key]
	if !ok {
		return
	}
	for _, c := range n.meta().children {
		t.deleteSubtree(c)
	}
	delete(t.nodes, key)
}

// Replace puts node in old's position and deletes old's subtree.
func (t *Tree) Replace(old, node NodeKey) error {
	return t.replaceWith(old, node)
}

func (t *Tree) replaceWith(old, node NodeKey) error {
	on, err := t.mustGet(old)
	if err != nil {
		return err
	}
	nn, err := t.mustGet(node)
	if err != nil {
		return err
	}
	parentKey := on.Parent()
	parent, ok := t.nodes[parentKey]
	if !ok {
		return fmt.Errorf("%w: %s has no parent", ErrInvalidChild, old)
	}
	if !canContain(parent, nn) {
		return fmt.Errorf("%w: %s cannot contain %s", ErrInvalidChild, parent.Type(), nn.Type())
	}
	if nn.Parent() != "" {
		t.detach(node)
	}
	m := parent.meta()
	idx := slices.Index(m.children, old)
	m.children[idx] = node
	nn.meta().parent = parentKey
	on.meta().parent = ""
	t.deleteSubtree(old)
	t.markDirty()
	t.healAround(node)
	return nil
}

// Clear removes every child of key.
func (t *Tree) Clear(key NodeKey) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	children := n.meta().children
	if len(children) == 0 {
		return nil
	}
	for _, c := range children {
		t.deleteSubtree(c)
	}
	n.meta().children = nil
	t.markDirty()
	t.healAround(key)
	return nil
}

// Splice removes deleteCount children of parent starting at start and
// inserts nodes in their place. Indexes refer to the children before the
// call; inserted nodes that are already children of parent are moved, not
// deleted.
func (t *Tree) Splice(parent NodeKey, start, deleteCount int, nodes ...NodeKey) error {
	p, err := t.mustGet(parent)
	if err != nil {
		return err
	}
	m := p.meta()
	if start < 0 || start > len(m.children) {
		return fmt.Errorf("%w: splice start %d out of range", ErrInvalidChild, start)
	}
	end := min(start+max(deleteCount, 0), len(m.children))
	inserted := make(map[NodeKey]bool, len(nodes))
	for _, nk := range nodes {
		n, err := t.mustGet(nk)
		if err != nil {
			return err
		}
		if !canContain(p, n) || nk == parent || t.isAncestor(nk, parent) || inserted[nk] {
			return fmt.Errorf("%w: %s cannot contain %s", ErrInvalidChild, p.Type(), n.Type())
		}
		inserted[nk] = true
	}

	keep := func(keys []NodeKey) []NodeKey {
		return slices.DeleteFunc(slices.Clone(keys), func(k NodeKey) bool { return inserted[k] })
	}
	children := keep(m.children[:start])
	children = append(children, nodes...)
	children = append(children, keep(m.children[end:])...)
	var removed []NodeKey
	for _, k := range m.children[start:end] {
		if !inserted[k] {
			removed = append(removed, k)
		}
	}

	var formerParents []NodeKey
	for _, nk := range nodes {
		if old := t.nodes[nk].Parent(); old != "" && old != parent {
			t.detach(nk)
			formerParents = append(formerParents, old)
		}
	}
	for _, r := range removed {
		t.deleteSubtree(r)
	}
	changed := len(removed) > 0 || !slices.Equal(children, m.children)
	m.children = children
	for _, nk := range nodes {
		t.nodes[nk].meta().parent = parent
	}
	if changed {
		t.markDirty()
	}
	for _, old := range formerParents {
		t.healAround(old)
	}
	for _, nk := range nodes {
		t.healAround(nk)
	}
	t.healAround(parent)
	return nil
}

// MoveChildren appends all children of from to to, in order.
func (t *Tree) MoveChildren(from, to NodeKey) error {
	for _, c := range t.Children(from) {
		if err := t.Append(to, c); err != nil {
			return err
		}
	}
	return nil
}

// SetText replaces the content of a text node.
func (t *Tree) SetText(key NodeKey, text string) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	tn, ok := n.(*TextNode)
	if !ok {
		return wrongType(key, TypeText, n.Type())
	}
	if tn.Text == text {
		return nil
	}
	tn.Text = text
	t.markDirty()
	t.healAround(tn.parent)
	return nil
}

// SetTextFormat replaces the inline format bits of a text node.
func (t *Tree) SetTextFormat(key NodeKey, f TextFormat) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	tn, ok := n.(*TextNode)
	if !ok {
		return wrongType(key, TypeText, n.Type())
	}
	if tn.TextFormat != f {
		tn.TextFormat = f
		t.markDirty()
	}
	return nil
}

// SetAuthorText replaces the attribution of an author block.
func (t *Tree) SetAuthorText(key NodeKey, text string) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	a, ok := n.(*AuthorNode)
	if !ok {
		return wrongType(key, TypeAuthor, n.Type())
	}
	if a.AuthorText != text {
		a.AuthorText = text
		t.markDirty()
	}
	return nil
}

// SetElementFormat sets the alignment format of an element node.
func (t *Tree) SetElementFormat(key NodeKey, format string) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	if !n.IsElement() {
		return wrongType(key, TypeParagraph, n.Type())
	}
	if m := n.meta(); m.format != format {
		m.format = format
		t.markDirty()
	}
	return nil
}

// SetIndent sets the indent level of an element node.
func (t *Tree) SetIndent(key NodeKey, indent int) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	if m := n.meta(); m.indent != indent {
		m.indent = indent
		t.markDirty()
	}
	return nil
}

// SetDirection sets the writing direction of an element node.
func (t *Tree) SetDirection(key NodeKey, dir Direction) error {
	n, err := t.mustGet(key)
	if err != nil {
		return err
	}
	if m := n.meta(); m.direction != dir {
		m.direction = dir
		t.markDirty()
	}
	return nil
}

// SplitText cuts a text node at the given rune offsets and returns the keys
// of the resulting pieces in order. Offsets at the edges are ignored; the
// first piece keeps the original key.
func (t *Tree) SplitText(key NodeKey, offsets ...int) ([]NodeKey, error) {
	n, err := t.mustGet(key)
	if err != nil {
		return nil, err
	}
	tn, ok := n.(*TextNode)
	if !ok {
		return nil, wrongType(key, TypeText, n.Type())
	}
	runes := []rune(tn.Text)
	cuts := []int{0}
	for _, o := range slices.Sorted(slices.Values(offsets)) {
		if o > cuts[len(cuts)-1] && o < len(runes) {
			cuts = append(cuts, o)
		}
	}
	cuts = append(cuts, len(runes))
	if len(cuts) == 2 {
		return []NodeKey{key}, nil
	}
	out := []NodeKey{key}
	prev := key
	for i := 1; i < len(cuts)-1; i++ {
		piece := tn.copyNode().(*TextNode)
		piece.Text = string(runes[cuts[i]:cuts[i+1]])
		pk := t.Create(piece)
		if tn.parent != "" {
			if err := t.InsertAfter(prev, pk); err != nil {
				return nil, err
			}
		}
		out = append(out, pk)
		prev = pk
	}
	tn.Text = string(runes[:cuts[1]])
	t.markDirty()
	return out, nil
}

// Snapshot returns a deep copy that preserves keys. The copy starts clean.
func (t *Tree) Snapshot() *Tree {
	c := &Tree{
		nodes: make(map[NodeKey]Node, len(t.nodes)),
		root:  t.root,
		next:  t.next,
	}
	for k, n := range t.nodes {
		c.nodes[k] = n.copyNode()
	}
	return c
}

// CloneNode duplicates key's subtree with fresh keys. The copy is detached.
func (t *Tree) CloneNode(key NodeKey) (NodeKey, error) {
	n, err := t.mustGet(key)
	if err != nil {
		return "", err
	}
	if key == t.root {
		return "", fmt.Errorf("%w: the root cannot be cloned", ErrInvalidChild)
	}
	children := n.meta().children
	dup := n.copyNode()
	nk := t.Create(dup)
	for _, c := range children {
		ck, err := t.CloneNode(c)
		if err != nil {
			return "", err
		}
		dup.meta().children = append(dup.meta().children, ck)
		t.nodes[ck].meta().parent = nk
	}
	return nk, nil
}

// Prune deletes nodes that are not reachable from the root.
func (t *Tree) Prune() {
	reachable := make(map[NodeKey]bool, len(t.nodes))
	t.Walk(t.root, func(n Node) bool {
		reachable[n.Key()] = true
		return true
	})
	for k := range t.nodes {
		if !reachable[k] {
			delete(t.nodes, k)
		}
	}
}
