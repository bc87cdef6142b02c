package parser

import (
	"fmt"
	"io"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/exportfile"
)

// ExportParser reads files written by exportfile, compressed or not.
type ExportParser struct {
	// Registry decodes the content; nil uses content.DefaultRegistry.
	Registry *content.Registry
}

func (p *ExportParser) Parse(r io.Reader, filename string) (*Document, error) {
	f, err := exportfile.Read(r)
	if err != nil {
		return nil, err
	}
	reg := p.Registry
	if reg == nil {
		reg = content.DefaultRegistry()
	}
	doc := f.Document()
	tree, err := content.DeserializeOrEmpty(reg, []byte(doc.Content))
	if err != nil && doc.Content != "" {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	title := doc.Title
	if title == "" {
		title = titleFromFilename(filename)
	}
	return &Document{Title: title, Tree: tree}, nil
}
