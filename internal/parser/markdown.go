package parser

import (
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/doctree"
)

// MarkdownParser handles Markdown files using goldmark. Headings, emphasis,
// strikethrough and hard line breaks survive; other structure is flattened
// to paragraphs.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	b := doctree.New()
	title := titleFromFilename(filename)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		markdownBlock(b, n, src)
	}
	return &Document{Title: title, Tree: b.Tree()}, nil
}

func markdownBlock(b *doctree.Builder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Heading:
		b.Heading(node.Level)
		markdownInline(b, node, src, 0)
		b.Close()
	case *ast.Paragraph, *ast.TextBlock:
		b.Paragraph()
		markdownInline(b, node, src, 0)
		b.Close()
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			b.Paragraph()
			b.Text(trimNewline(string(line.Value(src))))
			b.Close()
		}
	case *ast.ThematicBreak, *ast.HTMLBlock:
	default:
		// Lists, block quotes and other containers.
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			markdownBlock(b, c, src)
		}
	}
}

func markdownInline(b *doctree.Builder, parent ast.Node, src []byte, f content.TextFormat) {
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			b.Styled(string(node.Value(src)), f)
			if node.HardLineBreak() {
				b.LineBreak()
			}
		case *ast.String:
			b.Styled(string(node.Value), f)
		case *ast.CodeSpan:
			markdownInline(b, node, src, f|content.FormatCode)
		case *ast.Emphasis:
			if node.Level >= 2 {
				markdownInline(b, node, src, f|content.FormatBold)
			} else {
				markdownInline(b, node, src, f|content.FormatItalic)
			}
		case *east.Strikethrough:
			markdownInline(b, node, src, f|content.FormatStrikethrough)
		case *ast.RawHTML, *ast.Image:
		default:
			markdownInline(b, c, src, f)
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
