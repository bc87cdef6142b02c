// Package preview summarizes documents for listings: an outline of the
// heading structure with sized sections, and short excerpts.
package preview

import (
	"strings"

	"github.com/dgallion1/tategaki/internal/content"
)

// Config controls section splitting.
type Config struct {
	SectionSize int // Target section size in characters.
	MinSection  int // Sections shorter than this are dropped.
	ExcerptSize int // Maximum excerpt length in characters.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SectionSize: 2000,
		MinSection:  1,
		ExcerptSize: 120,
	}
}

// Section is a sized run of body text under a heading path.
type Section struct {
	Text       string   `json:"text"`
	Index      int      `json:"index"`
	Breadcrumb []string `json:"breadcrumb,omitempty"`
	Characters int      `json:"characters"`
}

// Outline walks the blocks of t and produces heading-aware sections.
// Attribution blocks are not body text and are skipped.
func Outline(t *content.Tree, cfg Config) []Section {
	if cfg.SectionSize <= 0 {
		cfg.SectionSize = 2000
	}
	if cfg.MinSection <= 0 {
		cfg.MinSection = 1
	}

	var (
		sections []Section
		crumbs   []string
		levels   []int
		body     []string
	)
	flush := func() {
		if len(body) == 0 {
			return
		}
		for _, part := range splitText(strings.Join(body, "\n"), cfg.SectionSize) {
			n := CountCharacters(part)
			if n < cfg.MinSection {
				continue
			}
			sections = append(sections, Section{
				Text:       part,
				Index:      len(sections),
				Breadcrumb: copyBreadcrumb(crumbs),
				Characters: n,
			})
		}
		body = body[:0]
	}

	for _, k := range t.Children(t.Root()) {
		switch n := t.Get(k).(type) {
		case *content.HeadingNode:
			flush()
			level := int(n.Tag[1] - '0')
			// Pop headings at the same or a deeper level.
			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels, crumbs = levels[:len(levels)-1], crumbs[:len(crumbs)-1]
			}
			levels = append(levels, level)
			crumbs = append(crumbs, strings.TrimSpace(t.TextContent(k)))
		case *content.AuthorNode:
		default:
			if line := strings.TrimSpace(t.TextContent(k)); line != "" {
				body = append(body, line)
			}
		}
	}
	flush()
	return sections
}

// splitText breaks text into parts of about target characters, preferring
// paragraph and then sentence boundaries.
func splitText(text string, target int) []string {
	var (
		result  []string
		current strings.Builder
		count   int
	)
	emit := func() {
		if count > 0 {
			result = append(result, current.String())
		}
		current.Reset()
		count = 0
	}
	for _, para := range strings.Split(text, "\n") {
		n := CountCharacters(para)
		if n > target {
			emit()
			result = append(result, splitBySentences(para, target)...)
			continue
		}
		if count+n > target {
			emit()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(para)
		count += n
	}
	emit()
	return result
}

// splitBySentences breaks a long paragraph into sentence-aligned parts. A
// single sentence longer than target is cut at target characters.
func splitBySentences(text string, target int) []string {
	var (
		result  []string
		current strings.Builder
		count   int
	)
	for _, sent := range splitSentences(text) {
		for _, piece := range cutCharacters(sent, target) {
			n := CountCharacters(piece)
			if count+n > target && count > 0 {
				result = append(result, current.String())
				current.Reset()
				count = 0
			}
			current.WriteString(piece)
			count += n
		}
	}
	if count > 0 {
		result = append(result, current.String())
	}
	return result
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
