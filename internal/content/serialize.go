package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// maxDepth bounds nesting in imported blobs.
const maxDepth = 512

// SerializedNode is the JSON shape of one node. The layout follows the
// Lexical editor state so documents stay interchangeable with it.
type SerializedNode struct {
	Type     NodeType          `json:"type"`
	Version  int               `json:"version"`
	Children []*SerializedNode `json:"children,omitempty"`

	// Format is an alignment string on elements and a bitmask on text.
	Format    json.RawMessage `json:"format,omitempty"`
	Indent    *int            `json:"indent,omitempty"`
	Direction json.RawMessage `json:"direction,omitempty"`

	Text   *string `json:"text,omitempty"`
	Style  *string `json:"style,omitempty"`
	Mode   *string `json:"mode,omitempty"`
	Detail *int    `json:"detail,omitempty"`

	TextFormat *int    `json:"textFormat,omitempty"`
	TextStyle  *string `json:"textStyle,omitempty"`
	Tag        string  `json:"tag,omitempty"`

	RubyText   *string `json:"rubyText,omitempty"`
	BaseText   *string `json:"baseText,omitempty"`
	AuthorText *string `json:"authorText,omitempty"`
}

// Document is the top-level blob.
type Document struct {
	Root *SerializedNode `json:"root"`
}

func intJSON(v int) json.RawMessage { return json.RawMessage(strconv.Itoa(v)) }

func stringJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func (sn *SerializedNode) textFormat() (TextFormat, error) {
	if len(sn.Format) == 0 {
		return 0, nil
	}
	var f int
	if err := json.Unmarshal(sn.Format, &f); err != nil {
		return 0, corrupt("text format %s", sn.Format)
	}
	return TextFormat(f), nil
}

func (sn *SerializedNode) elementFormat() (string, error) {
	if len(sn.Format) == 0 || bytes.Equal(sn.Format, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(sn.Format, &s); err == nil {
		return s, nil
	}
	// Some writers store alignment as a number; 0 means unset.
	var n int
	if err := json.Unmarshal(sn.Format, &n); err == nil && n == 0 {
		return "", nil
	}
	return "", corrupt("element format %s", sn.Format)
}

func (sn *SerializedNode) direction() (Direction, error) {
	if len(sn.Direction) == 0 || bytes.Equal(sn.Direction, []byte("null")) {
		return DirectionNone, nil
	}
	var s string
	if err := json.Unmarshal(sn.Direction, &s); err != nil {
		return "", corrupt("direction %s", sn.Direction)
	}
	switch Direction(s) {
	case DirectionNone, DirectionLTR, DirectionRTL:
		return Direction(s), nil
	}
	return "", corrupt("direction %q", s)
}

// Serialize encodes t with the default registry.
func Serialize(t *Tree) ([]byte, error) {
	return DefaultRegistry().Serialize(t)
}

// Deserialize decodes blob into a fresh tree. New keys are assigned.
func Deserialize(reg *Registry, blob []byte) (*Tree, error) {
	return reg.Deserialize(blob)
}

// DeserializeOrEmpty is Deserialize with a fallback: on failure it returns an
// empty document together with the error so the caller can surface it.
func DeserializeOrEmpty(reg *Registry, blob []byte) (*Tree, error) {
	t, err := reg.Deserialize(blob)
	if err != nil {
		return NewDocument(), err
	}
	return t, nil
}

// Serialize encodes t. Only reachable nodes are written.
func (r *Registry) Serialize(t *Tree) ([]byte, error) {
	root, err := r.export(t, t.root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Document{Root: root})
}

func (r *Registry) export(t *Tree, key NodeKey) (*SerializedNode, error) {
	n, err := t.mustGet(key)
	if err != nil {
		return nil, err
	}
	cls, err := r.classFor(n.Type())
	if err != nil {
		return nil, err
	}
	sn := &SerializedNode{Type: n.Type(), Version: cls.Version}
	if n.IsElement() {
		m := n.meta()
		sn.Format = stringJSON(m.format)
		sn.Indent = ptr(m.indent)
		if m.direction == DirectionNone {
			sn.Direction = json.RawMessage("null")
		} else {
			sn.Direction = stringJSON(string(m.direction))
		}
	}
	cls.Export(n, sn)
	for _, c := range n.meta().children {
		cs, err := r.export(t, c)
		if err != nil {
			return nil, err
		}
		sn.Children = append(sn.Children, cs)
	}
	return sn, nil
}

// Deserialize decodes blob into a fresh tree with the classes of r.
func (r *Registry) Deserialize(blob []byte) (*Tree, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, corrupt("empty blob")
	}
	var doc Document
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, corrupt("invalid JSON: %v", err)
	}
	if doc.Root == nil {
		return nil, corrupt("missing root")
	}
	if doc.Root.Type != TypeRoot {
		return nil, corrupt("top-level node is %q, want root", doc.Root.Type)
	}
	t := &Tree{nodes: make(map[NodeKey]Node)}
	key, err := r.build(t, doc.Root, 0)
	if err != nil {
		return nil, err
	}
	t.root = key
	t.Prune()
	t.dirty = false
	return t, nil
}

func (r *Registry) build(t *Tree, sn *SerializedNode, depth int) (NodeKey, error) {
	if sn == nil {
		return "", corrupt("null node")
	}
	if depth > maxDepth {
		return "", corrupt("nesting deeper than %d", maxDepth)
	}
	if sn.Type == "" {
		return "", corrupt("node without type")
	}
	if depth > 0 && sn.Type == TypeRoot {
		return "", corrupt("nested root")
	}
	cls, err := r.classFor(sn.Type)
	if err != nil {
		return "", err
	}
	if sn.Version != cls.Version {
		return "", fmt.Errorf("%w: %s version %d", ErrUnknownVersion, sn.Type, sn.Version)
	}
	n, err := cls.Import(sn)
	if err != nil {
		return "", err
	}
	if n.IsElement() {
		m := n.meta()
		if m.format, err = sn.elementFormat(); err != nil {
			return "", err
		}
		if m.direction, err = sn.direction(); err != nil {
			return "", err
		}
		m.indent = deref(sn.Indent)
	} else if len(sn.Children) > 0 {
		return "", corrupt("%s node has children", sn.Type)
	}
	key := t.Create(n)
	for _, csn := range sn.Children {
		ck, err := r.build(t, csn, depth+1)
		if err != nil {
			return "", err
		}
		if err := t.Append(key, ck); err != nil {
			return "", corrupt("%v", err)
		}
	}
	if cls.Upgrade != nil {
		if err := cls.Upgrade(t, key, sn); err != nil {
			return "", err
		}
	}
	return key, nil
}
