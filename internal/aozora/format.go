package aozora

import (
	"io"
	"strings"

	"github.com/dgallion1/tategaki/internal/content"
)

var headingLabels = map[string]string{"h1": "大見出し", "h2": "中見出し"}

const defaultHeadingLabel = "小見出し"

// Format writes t as annotated text, one block per line. Ruby is always
// written in the explicit bar form. Line breaks inside a block become
// line ends and therefore separate paragraphs when read back.
func Format(t *content.Tree) string {
	var b strings.Builder
	for _, k := range t.Children(t.Root()) {
		formatBlock(t, k, &b)
		b.WriteByte('\n')
	}
	return b.String()
}

// Write is Format into w.
func Write(w io.Writer, t *content.Tree) error {
	_, err := io.WriteString(w, Format(t))
	return err
}

func formatBlock(t *content.Tree, key content.NodeKey, b *strings.Builder) {
	switch n := t.Get(key).(type) {
	case *content.AuthorNode:
		b.WriteString("［＃" + noteAuthor + "］")
		b.WriteString(n.AuthorText)
		return
	case *content.HeadingNode:
		label, ok := headingLabels[n.Tag]
		if !ok {
			label = defaultHeadingLabel
		}
		b.WriteString("［＃" + label + "］")
		formatInline(t, key, b)
		b.WriteString("［＃" + label + "終わり］")
		return
	}
	formatInline(t, key, b)
}

func formatInline(t *content.Tree, parent content.NodeKey, b *strings.Builder) {
	for _, k := range t.Children(parent) {
		switch n := t.Get(k).(type) {
		case *content.TextNode:
			b.WriteString(n.Text)
		case *content.LineBreakNode:
			b.WriteByte('\n')
		case *content.RubyNode:
			b.WriteString("｜" + t.TextContent(k) + "《" + n.RubyText + "》")
		case *content.TateChuYokoNode:
			b.WriteString("［＃" + noteTateChuYoko + "］")
			formatInline(t, k, b)
			b.WriteString("［＃" + noteTateChuYokoEnd + "］")
		}
	}
}
