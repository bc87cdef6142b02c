package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/doctree"
)

// HTMLParser handles HTML files. <ruby>/<rt> pairs become ruby,
// text-combine-upright spans become tate-chu-yoko and elements with an
// "author" class become attribution blocks.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Document, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromFilename(filename)
	if t := findTitle(doc); t != "" {
		title = t
	}

	b := doctree.New()
	if body := findBody(doc); body != nil {
		htmlChildren(b, body, 0)
	} else {
		htmlChildren(b, doc, 0)
	}
	return &Document{Title: title, Tree: b.Tree()}, nil
}

var htmlFormats = map[string]content.TextFormat{
	"b":      content.FormatBold,
	"strong": content.FormatBold,
	"i":      content.FormatItalic,
	"em":     content.FormatItalic,
	"s":      content.FormatStrikethrough,
	"del":    content.FormatStrikethrough,
	"strike": content.FormatStrikethrough,
	"u":      content.FormatUnderline,
	"code":   content.FormatCode,
	"sub":    content.FormatSubscript,
	"sup":    content.FormatSuperscript,
}

func htmlChildren(b *doctree.Builder, n *html.Node, f content.TextFormat) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		htmlNode(b, c, f)
	}
}

func htmlNode(b *doctree.Builder, n *html.Node, f content.TextFormat) {
	switch n.Type {
	case html.TextNode:
		s := collapseSpace(n.Data)
		if !b.InBlock() && strings.TrimSpace(s) == "" {
			return
		}
		b.Styled(s, f)
		return
	case html.ElementNode:
	default:
		htmlChildren(b, n, f)
		return
	}

	if hasClass(n, "author") {
		b.Author(textContent(n))
		return
	}
	if level := headingLevel(n.Data); level > 0 {
		b.Heading(level)
		htmlChildren(b, n, f)
		b.Close()
		return
	}
	switch n.Data {
	case "script", "style", "nav", "footer", "header", "rt", "rp", "template":
		return
	case "p", "li", "dt", "dd", "td", "th", "pre", "address":
		b.Paragraph()
		htmlChildren(b, n, f)
		b.Close()
	case "div", "section", "article", "main", "blockquote", "ul", "ol", "dl", "table", "tbody", "thead", "tr", "figure":
		b.Close()
		htmlChildren(b, n, f)
		b.Close()
	case "br":
		b.LineBreak()
	case "ruby":
		base, gloss := rubyParts(n)
		b.Ruby(collapseSpace(base), strings.TrimSpace(gloss))
	case "span":
		if isUpright(n) {
			b.BeginTateChuYoko()
			b.Styled(strings.TrimSpace(textContent(n)), f)
			b.EndTateChuYoko()
			return
		}
		htmlChildren(b, n, f)
	default:
		htmlChildren(b, n, f|htmlFormats[n.Data])
	}
}

// rubyParts splits a <ruby> element into its base and gloss text.
func rubyParts(n *html.Node) (base, gloss string) {
	var bb, gb strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inRT bool) {
		if n.Type == html.TextNode {
			if inRT {
				gb.WriteString(n.Data)
			} else {
				bb.WriteString(n.Data)
			}
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "rp":
				return
			case "rt":
				inRT = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inRT)
		}
	}
	walk(n, false)
	return bb.String(), gb.String()
}

func isUpright(n *html.Node) bool {
	if hasClass(n, "tcy") || hasClass(n, "tate-chu-yoko") {
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "style" && strings.Contains(a.Val, "text-combine-upright") {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// collapseSpace folds runs of HTML whitespace into one space.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "rt" || n.Data == "rp") {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
