package preview

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/dgallion1/tategaki/internal/content"
)

// CountCharacters counts user-perceived characters, ignoring newlines.
func CountCharacters(text string) int {
	return content.CountGraphemes(text)
}

// sentenceEnd reports whether r closes a sentence.
func sentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '.':
		return true
	}
	return false
}

// closer reports whether r may trail a sentence end, like a closing bracket.
func closer(r rune) bool {
	switch r {
	case '」', '』', '）', ')', '”', '"':
		return true
	}
	return false
}

// splitSentences splits after sentence-ending punctuation and any closing
// brackets that follow it. The pieces concatenate back to text.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
		ended     bool
	)
	for i, r := range text {
		if ended && !closer(r) && !sentenceEnd(r) {
			sentences = append(sentences, text[start:i])
			start = i
			ended = false
		}
		if sentenceEnd(r) {
			ended = true
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// cutCharacters splits s into pieces of at most n grapheme clusters.
func cutCharacters(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	var (
		out   []string
		start int
		count int
	)
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		from, _ := g.Positions()
		if count == n {
			out = append(out, s[start:from])
			start, count = from, 0
		}
		count++
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Excerpt returns the start of the document's text, at most max
// characters, cut at a sentence end when one falls in the second half.
// Newlines become spaces.
func Excerpt(t *content.Tree, max int) string {
	text := strings.Join(strings.Fields(strings.ReplaceAll(content.ExtractText(t), "\n", " ")), " ")
	if max <= 0 || CountCharacters(text) <= max {
		return text
	}
	head := cutCharacters(text, max)[0]
	var keep string
	for _, sent := range splitSentences(head) {
		if !sentenceEnd(lastRune(strings.TrimRight(sent, "」』）)”\" "))) {
			break
		}
		keep += sent
	}
	if CountCharacters(keep) >= max/2 {
		return strings.TrimSpace(keep)
	}
	return head + "…"
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
