// Package exportfile reads and writes standalone document files.
//
// A file is a JSON object carrying the document title, its serialized
// content and timestamps. Files may be xz compressed; Read detects the
// compression from the stream header.
package exportfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/dgallion1/tategaki/internal/store"
)

// ErrBadFile reports an import file that is not a usable document.
var ErrBadFile = errors.New("exportfile: invalid document file")

// Extensions of written files.
const (
	Ext   = ".tategaki.json"
	XZExt = ".tategaki.json.xz"
)

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// File is the on-disk form of a document. Title and Content are pointers so
// that absent fields can be told apart from empty ones.
type File struct {
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// FromDocument builds the file for a stored document.
func FromDocument(doc store.Document) File {
	title, content := doc.Title, doc.Content
	return File{Title: &title, Content: &content, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}
}

// Document converts f to a record ready for store.Import.
func (f File) Document() store.Document {
	return store.Document{
		Title:     deref(f.Title),
		Content:   deref(f.Content),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Validate checks that both title and content are present.
func (f File) Validate() error {
	switch {
	case f.Title == nil:
		return fmt.Errorf("%w: missing title", ErrBadFile)
	case f.Content == nil:
		return fmt.Errorf("%w: missing content", ErrBadFile)
	}
	return nil
}

// Write encodes f as indented JSON, compressed when compress is set.
func Write(w io.Writer, f File, compress bool) error {
	if !compress {
		return encode(w, f)
	}
	zw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}
	if err := encode(zw, f); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing xz stream: %w", err)
	}
	return nil
}

func encode(w io.Writer, f File) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding document file: %w", err)
	}
	return nil
}

// Read decodes and validates a file, plain or xz compressed. Any decoding
// failure is reported as ErrBadFile.
func Read(r io.Reader) (File, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(xzMagic)); bytes.Equal(head, xzMagic) {
		zr, err := xz.NewReader(br)
		if err != nil {
			return File{}, fmt.Errorf("%w: %v", ErrBadFile, err)
		}
		src = zr
	}
	var f File
	if err := json.NewDecoder(src).Decode(&f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}
