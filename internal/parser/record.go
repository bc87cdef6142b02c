package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/exportfile"
	"github.com/dgallion1/tategaki/internal/store"
)

// Options tune Record.
type Options struct {
	// Registry decodes and encodes content; nil uses content.DefaultRegistry.
	Registry          *content.Registry
	FallbackPdftotext bool
}

// IsExportFile reports whether filename names an export file.
func IsExportFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".json" || ext == ".xz"
}

// Record converts an uploaded file into a record ready for store.Import.
// Export files keep their title and creation time, and their content must
// decode. Files that cannot be read are reported as exportfile.ErrBadFile.
func Record(data []byte, filename string, opts Options) (store.Document, error) {
	reg := opts.Registry
	if reg == nil {
		reg = content.DefaultRegistry()
	}
	if IsExportFile(filename) {
		f, err := exportfile.Read(bytes.NewReader(data))
		if err != nil {
			return store.Document{}, err
		}
		doc := f.Document()
		if doc.Content != "" {
			if _, err := reg.Deserialize([]byte(doc.Content)); err != nil {
				return store.Document{}, err
			}
		}
		return doc, nil
	}

	p, err := ForFile(filename)
	if err != nil {
		return store.Document{}, fmt.Errorf("%w: %v", exportfile.ErrBadFile, err)
	}
	if pp, ok := p.(*PDFParser); ok {
		pp.FallbackPdftotext = opts.FallbackPdftotext
	}
	parsed, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return store.Document{}, fmt.Errorf("%w: %s: %v", exportfile.ErrBadFile, filename, err)
	}
	blob, err := reg.Serialize(parsed.Tree)
	if err != nil {
		return store.Document{}, fmt.Errorf("serializing %s: %w", filename, err)
	}
	return store.Document{Title: parsed.Title, Content: string(blob)}, nil
}
