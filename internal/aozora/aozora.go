// Package aozora reads and writes plain text with Aozora Bunko style
// annotations:
//
//	｜青空《あおぞら》      explicit ruby
//	漢字《かんじ》          ruby over the trailing kanji run
//	［＃縦中横］12［＃縦中横終わり］
//	［＃地付き］著者名      attribution line
//	［＃大見出し］題［＃大見出し終わり］
//
// Each line is a paragraph. Unknown notes are dropped.
package aozora

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/doctree"
)

var (
	aozoraLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Newline", Pattern: `\r\n|\n|\r`},
		{Name: "Bar", Pattern: `｜`},
		{Name: "Gloss", Pattern: `《[^《》\r\n]*》`},
		{Name: "Note", Pattern: `［＃[^］\r\n]*］`},
		{Name: "Text", Pattern: `[^｜《》［］\r\n]+`},
		{Name: "Stray", Pattern: `[《》［］]`},
	})

	textParser = participle.MustBuild[Text](
		participle.Lexer(aozoraLexer),
		participle.Map(stripDelims("《", "》"), "Gloss"),
		participle.Map(stripDelims("［＃", "］"), "Note"),
	)
)

func stripDelims(open, close string) participle.Mapper {
	return func(t lexer.Token) (lexer.Token, error) {
		t.Value = strings.TrimSuffix(strings.TrimPrefix(t.Value, open), close)
		return t, nil
	}
}

// Text is the token-level AST of a file.
type Text struct {
	Items []*Item `parser:"@@*"`
}

// Item is one lexical element in reading order.
type Item struct {
	Newline bool          `parser:"  @Newline"`
	Ruby    *ExplicitRuby `parser:"| @@"`
	Gloss   *string       `parser:"| @Gloss"`
	Note    *string       `parser:"| @Note"`
	Text    *string       `parser:"| @(Text | Stray)"`
}

// ExplicitRuby is a ruby whose base starts at a bar. Without a gloss the
// bar is kept as text.
type ExplicitRuby struct {
	Base  *string `parser:"Bar @Text?"`
	Gloss *string `parser:"@Gloss?"`
}

// Notes understood by the reader.
const (
	noteTateChuYoko    = "縦中横"
	noteTateChuYokoEnd = "縦中横終わり"
	noteAuthor         = "地付き"
)

var headingNotes = map[string]int{"大見出し": 1, "中見出し": 2, "小見出し": 3}

// Parse reads annotated text into a document tree.
func Parse(r io.Reader) (*content.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseString(string(src))
}

// ParseString is Parse over a string.
func ParseString(src string) (*content.Tree, error) {
	ast, err := textParser.ParseString("", strings.TrimPrefix(src, "\ufeff"))
	if err != nil {
		return nil, fmt.Errorf("parsing aozora text: %w", err)
	}
	return build(ast), nil
}

// reader turns items into blocks, one source line at a time.
type reader struct {
	b        *doctree.Builder
	author   *strings.Builder
	lineOpen bool
}

func build(ast *Text) *content.Tree {
	rd := &reader{b: doctree.New()}
	items := ast.Items
	// A trailing newline does not start another paragraph.
	if n := len(items); n > 0 && items[n-1].Newline {
		items = items[:n-1]
	}
	for _, it := range items {
		rd.item(it)
	}
	rd.endLine()
	return rd.b.Tree()
}

func (rd *reader) startLine() {
	if !rd.lineOpen {
		rd.b.Paragraph()
		rd.lineOpen = true
	}
}

func (rd *reader) endLine() {
	if rd.author != nil {
		rd.b.Author(rd.author.String())
		rd.author = nil
	} else if !rd.lineOpen {
		rd.b.Paragraph()
	}
	rd.b.Close()
	rd.lineOpen = false
}

func (rd *reader) text(s string) {
	if rd.author != nil {
		rd.author.WriteString(s)
		return
	}
	rd.startLine()
	rd.b.Text(s)
}

func (rd *reader) item(it *Item) {
	switch {
	case it.Newline:
		rd.endLine()
	case it.Ruby != nil:
		base := deref(it.Ruby.Base)
		if it.Ruby.Gloss == nil {
			rd.text("｜" + base)
			return
		}
		if rd.author != nil {
			rd.author.WriteString(base)
			return
		}
		rd.startLine()
		rd.b.Ruby(base, *it.Ruby.Gloss)
	case it.Gloss != nil:
		rd.implicitRuby(*it.Gloss)
	case it.Note != nil:
		rd.note(*it.Note)
	case it.Text != nil:
		rd.text(*it.Text)
	}
}

// implicitRuby attaches gloss to the kanji run that ends the preceding text.
func (rd *reader) implicitRuby(gloss string) {
	if rd.author == nil && rd.lineOpen {
		if base := rd.b.TakeTrailing(isKanji); base != "" {
			rd.b.Ruby(base, gloss)
			return
		}
	}
	if rd.author != nil {
		// Attributions carry no ruby; the gloss is dropped.
		return
	}
	rd.text("《" + gloss + "》")
}

func (rd *reader) note(note string) {
	switch {
	case rd.author != nil:
		// Attribution lines are plain text.
	case note == noteTateChuYoko:
		rd.startLine()
		rd.b.BeginTateChuYoko()
	case note == noteTateChuYokoEnd:
		rd.b.EndTateChuYoko()
	case note == noteAuthor && !rd.lineOpen:
		rd.author = &strings.Builder{}
	default:
		if level, ok := headingNotes[note]; ok && !rd.lineOpen {
			rd.b.Heading(level)
			rd.lineOpen = true
		}
		// Closing heading notes and unknown notes carry no content.
	}
}

func isKanji(r rune) bool {
	return unicode.Is(unicode.Han, r) || r == '々' || r == '〆' || r == 'ヶ' || r == '〇'
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
