package content

import (
	"strings"

	"github.com/rivo/uniseg"
)

// ExtractText flattens t into plain text in reading order. Blocks end with a
// newline, line breaks become newlines, ruby contributes its base text only
// and author blocks contribute their attribution.
func ExtractText(t *Tree) string {
	var b strings.Builder
	for _, k := range t.Children(t.root) {
		extract(t, k, &b)
	}
	return b.String()
}

func extract(t *Tree, key NodeKey, b *strings.Builder) {
	n := t.Get(key)
	switch v := n.(type) {
	case nil:
		return
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
		extract(t, c, b)
	}
	if IsBlock(n) {
		b.WriteByte('\n')
	}
}

// CountGraphemes counts user-perceived characters, ignoring line terminators.
func CountGraphemes(text string) int {
	text = strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(text)
	return uniseg.GraphemeClusterCount(text)
}

// CountLines counts newline-separated lines. A trailing newline does not
// open a new line, and an empty text is a single empty line.
func CountLines(text string) int {
	text = strings.TrimSuffix(text, "\n")
	return strings.Count(text, "\n") + 1
}

// CountCharacters decodes blob and counts the characters of its text. A blob
// that cannot be decoded counts as zero.
func CountCharacters(reg *Registry, blob []byte) int {
	t, err := reg.Deserialize(blob)
	if err != nil {
		return 0
	}
	return CountGraphemes(ExtractText(t))
}

// Stats summarizes a document for status displays.
type Stats struct {
	Characters int `json:"characters"`
	Lines      int `json:"lines"`
}

// Measure computes Stats for t.
func Measure(t *Tree) Stats {
	text := ExtractText(t)
	return Stats{Characters: CountGraphemes(text), Lines: CountLines(text)}
}
