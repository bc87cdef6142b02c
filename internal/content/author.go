package content

// AuthorNode is a standalone attribution block. It is never merged with the
// paragraphs around it.
type AuthorNode struct {
	nodeMeta
	AuthorText string
}

// NewAuthor returns a detached author block.
func NewAuthor(authorText string) *AuthorNode {
	return &AuthorNode{AuthorText: authorText}
}

func (*AuthorNode) Type() NodeType  { return TypeAuthor }
func (*AuthorNode) IsInline() bool  { return false }
func (*AuthorNode) IsElement() bool { return true }
func (n *AuthorNode) copyNode() Node {
	c := *n
	c.nodeMeta = n.nodeMeta.clone()
	return &c
}

// IsAuthor reports whether n is an author block.
func IsAuthor(n Node) bool {
	_, ok := n.(*AuthorNode)
	return ok
}
