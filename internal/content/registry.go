package content

import (
	"fmt"
	"slices"
)

// NodeClass describes how one node type crosses the serialization boundary.
type NodeClass struct {
	Type    NodeType
	Version int
	// Companion names the editor plugin that must be installed alongside
	// the node. Empty for core nodes.
	Companion string

	Import func(sn *SerializedNode) (Node, error)
	Export func(n Node, sn *SerializedNode)
	// Upgrade runs after the node and its serialized children are attached
	// and rewrites legacy shapes in place. Optional.
	Upgrade func(t *Tree, key NodeKey, sn *SerializedNode) error
}

// Registry maps node types to their classes.
type Registry struct {
	classes map[NodeType]NodeClass
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[NodeType]NodeClass)}
}

// Register adds a class. Registering the same type twice is a configuration
// error.
func (r *Registry) Register(c NodeClass) error {
	if c.Type == "" || c.Import == nil || c.Export == nil {
		return &ConfigError{Type: c.Type, Reason: "incomplete node class"}
	}
	if _, dup := r.classes[c.Type]; dup {
		return &ConfigError{Type: c.Type, Reason: "registered twice"}
	}
	r.classes[c.Type] = c
	return nil
}

// Lookup returns the class for typ.
func (r *Registry) Lookup(typ NodeType) (NodeClass, bool) {
	c, ok := r.classes[typ]
	return c, ok
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []NodeType {
	out := make([]NodeType, 0, len(r.classes))
	for t := range r.classes {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Builtin reports whether typ is one of the node types this package defines.
func Builtin(typ NodeType) bool {
	switch typ {
	case TypeRoot, TypeText, TypeLineBreak, TypeParagraph, TypeHeading,
		TypeRuby, TypeTateChuYoko, TypeAuthor:
		return true
	}
	return false
}

// Companion plugin names for the annotation nodes.
const (
	PluginRuby        = "ruby"
	PluginTateChuYoko = "tate-chu-yoko"
	PluginAuthor      = "author"
)

// BaseRegistry holds the core rich-text nodes only.
func BaseRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []NodeClass{rootClass, textClass, lineBreakClass, paragraphClass, headingClass} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultRegistry holds the core nodes plus ruby, tate-chu-yoko and author.
func DefaultRegistry() *Registry {
	r := BaseRegistry()
	for _, c := range AnnotationClasses() {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// AnnotationClasses returns the classes of the three annotation nodes.
func AnnotationClasses() []NodeClass {
	return []NodeClass{rubyClass, tateChuYokoClass, authorClass}
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

var rootClass = NodeClass{
	Type:    TypeRoot,
	Version: 1,
	Import:  func(*SerializedNode) (Node, error) { return &RootNode{}, nil },
	Export:  func(Node, *SerializedNode) {},
}

var textClass = NodeClass{
	Type:    TypeText,
	Version: 1,
	Import: func(sn *SerializedNode) (Node, error) {
		f, err := sn.textFormat()
		if err != nil {
			return nil, err
		}
		mode := deref(sn.Mode)
		if mode == "" {
			mode = "normal"
		}
		return &TextNode{
			Text:       deref(sn.Text),
			Style:      deref(sn.Style),
			Mode:       mode,
			Detail:     deref(sn.Detail),
			TextFormat: f,
		}, nil
	},
	Export: func(n Node, sn *SerializedNode) {
		tn := n.(*TextNode)
		sn.Text = ptr(tn.Text)
		sn.Style = ptr(tn.Style)
		sn.Mode = ptr(tn.Mode)
		sn.Detail = ptr(tn.Detail)
		sn.Format = intJSON(int(tn.TextFormat))
	},
}

var lineBreakClass = NodeClass{
	Type:    TypeLineBreak,
	Version: 1,
	Import:  func(*SerializedNode) (Node, error) { return NewLineBreak(), nil },
	Export:  func(Node, *SerializedNode) {},
}

var paragraphClass = NodeClass{
	Type:    TypeParagraph,
	Version: 1,
	Import: func(sn *SerializedNode) (Node, error) {
		return &ParagraphNode{
			TextFormat: TextFormat(deref(sn.TextFormat)),
			TextStyle:  deref(sn.TextStyle),
		}, nil
	},
	Export: func(n Node, sn *SerializedNode) {
		p := n.(*ParagraphNode)
		sn.TextFormat = ptr(int(p.TextFormat))
		sn.TextStyle = ptr(p.TextStyle)
	},
}

var headingClass = NodeClass{
	Type:    TypeHeading,
	Version: 1,
	Import: func(sn *SerializedNode) (Node, error) {
		switch sn.Tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
		default:
			return nil, corrupt("heading tag %q", sn.Tag)
		}
		return &HeadingNode{Tag: sn.Tag}, nil
	},
	Export: func(n Node, sn *SerializedNode) { sn.Tag = n.(*HeadingNode).Tag },
}

var rubyClass = NodeClass{
	Type:      TypeRuby,
	Version:   1,
	Companion: PluginRuby,
	Import: func(sn *SerializedNode) (Node, error) {
		return NewRuby(deref(sn.RubyText)), nil
	},
	Export: func(n Node, sn *SerializedNode) { sn.RubyText = ptr(n.(*RubyNode).RubyText) },
	Upgrade: func(t *Tree, key NodeKey, sn *SerializedNode) error {
		// Early documents stored the base as a baseText attribute.
		if len(sn.Children) > 0 || deref(sn.BaseText) == "" {
			return nil
		}
		return t.Append(key, t.Create(NewText(*sn.BaseText)))
	},
}

var tateChuYokoClass = NodeClass{
	Type:      TypeTateChuYoko,
	Version:   1,
	Companion: PluginTateChuYoko,
	Import:    func(*SerializedNode) (Node, error) { return NewTateChuYoko(), nil },
	Export:    func(Node, *SerializedNode) {},
}

var authorClass = NodeClass{
	Type:      TypeAuthor,
	Version:   1,
	Companion: PluginAuthor,
	Import: func(sn *SerializedNode) (Node, error) {
		return NewAuthor(deref(sn.AuthorText)), nil
	},
	Export: func(n Node, sn *SerializedNode) { sn.AuthorText = ptr(n.(*AuthorNode).AuthorText) },
}

func (r *Registry) classFor(typ NodeType) (NodeClass, error) {
	c, ok := r.classes[typ]
	if ok {
		return c, nil
	}
	if Builtin(typ) {
		return NodeClass{}, &ConfigError{Type: typ, Reason: "node type not registered"}
	}
	return NodeClass{}, fmt.Errorf("%w: node type %q", ErrUnknownVersion, typ)
}
