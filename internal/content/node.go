package content

// NodeKey identifies a node within one tree. Keys are never persisted;
// deserialization assigns fresh keys.
type NodeKey string

// NodeType is the serialized discriminator of a node variant.
type NodeType string

const (
	TypeRoot        NodeType = "root"
	TypeText        NodeType = "text"
	TypeLineBreak   NodeType = "linebreak"
	TypeParagraph   NodeType = "paragraph"
	TypeHeading     NodeType = "heading"
	TypeRuby        NodeType = "ruby"
	TypeTateChuYoko NodeType = "tate-chu-yoko"
	TypeAuthor      NodeType = "author"
)

// Direction is the writing direction recorded on element nodes.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionLTR  Direction = "ltr"
	DirectionRTL  Direction = "rtl"
)

// Node is implemented by every node variant. The set of variants is closed:
// Root, Text, LineBreak, Paragraph, Heading, Ruby, TateChuYoko and Author.
type Node interface {
	Key() NodeKey
	Parent() NodeKey
	Type() NodeType
	// IsInline reports whether the node flows inside a block.
	IsInline() bool
	// IsElement reports whether the node can hold children.
	IsElement() bool

	meta() *nodeMeta
	copyNode() Node
}

// nodeMeta carries the structural fields shared by all variants.
type nodeMeta struct {
	key      NodeKey
	parent   NodeKey
	children []NodeKey

	format    string
	indent    int
	direction Direction
}

func (m *nodeMeta) Key() NodeKey         { return m.key }
func (m *nodeMeta) Parent() NodeKey      { return m.parent }
func (m *nodeMeta) meta() *nodeMeta      { return m }
func (m *nodeMeta) Format() string       { return m.format }
func (m *nodeMeta) Indent() int          { return m.indent }
func (m *nodeMeta) Direction() Direction { return m.direction }

// Children returns a copy of the ordered child keys.
func (m *nodeMeta) Children() []NodeKey {
	out := make([]NodeKey, len(m.children))
	copy(out, m.children)
	return out
}

func (m nodeMeta) clone() nodeMeta {
	c := m
	c.children = append([]NodeKey(nil), m.children...)
	return c
}

// TextFormat is the bitmask of inline text styles as stored in the
// serialized "format" field of text nodes.
type TextFormat int

const (
	FormatBold TextFormat = 1 << iota
	FormatItalic
	FormatStrikethrough
	FormatUnderline
	FormatCode
	FormatSubscript
	FormatSuperscript
)

// Has reports whether all bits of f2 are set.
func (f TextFormat) Has(f2 TextFormat) bool { return f&f2 == f2 }

// Toggle flips the bits of f2.
func (f TextFormat) Toggle(f2 TextFormat) TextFormat { return f ^ f2 }

// RootNode is the single root of a tree.
type RootNode struct{ nodeMeta }

func (*RootNode) Type() NodeType   { return TypeRoot }
func (*RootNode) IsInline() bool   { return false }
func (*RootNode) IsElement() bool  { return true }
func (n *RootNode) copyNode() Node { return &RootNode{nodeMeta: n.nodeMeta.clone()} }

// TextNode is a leaf holding a plain run of text.
type TextNode struct {
	nodeMeta
	Text   string
	Style  string
	Mode   string
	Detail int
	// TextFormat holds inline styles; the element Format field is unused on text.
	TextFormat TextFormat
}

// NewText returns a detached text node.
func NewText(text string) *TextNode {
	return &TextNode{Text: text, Mode: "normal"}
}

func (*TextNode) Type() NodeType  { return TypeText }
func (*TextNode) IsInline() bool  { return true }
func (*TextNode) IsElement() bool { return false }
func (n *TextNode) copyNode() Node {
	c := *n
	c.nodeMeta = n.nodeMeta.clone()
	return &c
}

// LineBreakNode is a hard line break inside a block.
type LineBreakNode struct{ nodeMeta }

// NewLineBreak returns a detached line break.
func NewLineBreak() *LineBreakNode { return &LineBreakNode{} }

func (*LineBreakNode) Type() NodeType   { return TypeLineBreak }
func (*LineBreakNode) IsInline() bool   { return true }
func (*LineBreakNode) IsElement() bool  { return false }
func (n *LineBreakNode) copyNode() Node { return &LineBreakNode{nodeMeta: n.nodeMeta.clone()} }

// ParagraphNode is the default block.
type ParagraphNode struct {
	nodeMeta
	TextFormat TextFormat
	TextStyle  string
}

// NewParagraph returns a detached, empty paragraph.
func NewParagraph() *ParagraphNode { return &ParagraphNode{} }

func (*ParagraphNode) Type() NodeType  { return TypeParagraph }
func (*ParagraphNode) IsInline() bool  { return false }
func (*ParagraphNode) IsElement() bool { return true }
func (n *ParagraphNode) copyNode() Node {
	c := *n
	c.nodeMeta = n.nodeMeta.clone()
	return &c
}

// HeadingNode is a block with a heading level tag (h1..h6).
type HeadingNode struct {
	nodeMeta
	Tag string
}

// NewHeading returns a detached heading. Unknown tags fall back to h1.
func NewHeading(tag string) *HeadingNode {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
	default:
		tag = "h1"
	}
	return &HeadingNode{Tag: tag}
}

func (*HeadingNode) Type() NodeType  { return TypeHeading }
func (*HeadingNode) IsInline() bool  { return false }
func (*HeadingNode) IsElement() bool { return true }
func (n *HeadingNode) copyNode() Node {
	c := *n
	c.nodeMeta = n.nodeMeta.clone()
	return &c
}

// IsBlock reports whether n is a block-level element that ends a line in
// extracted text.
func IsBlock(n Node) bool {
	switch n.Type() {
	case TypeParagraph, TypeHeading, TypeAuthor:
		return true
	}
	return false
}
