package parser

import (
	"io"

	"github.com/dgallion1/tategaki/internal/aozora"
)

// TextParser handles plain text files with Aozora style ruby and notes.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	tree, err := aozora.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{Title: titleFromFilename(filename), Tree: tree}, nil
}
