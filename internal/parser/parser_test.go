package parser

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/exportfile"
	"github.com/dgallion1/tategaki/internal/store"
)

func TestForFile(t *testing.T) {
	for _, name := range []string{"a.txt", "b.MD", "c.html", "d.pdf", "e.docx", "f.tategaki.json", "g.tategaki.json.xz"} {
		if _, err := ForFile(name); err != nil {
			t.Errorf("ForFile(%q): %v", name, err)
		}
		if !IsSupportedExtension(name) {
			t.Errorf("IsSupportedExtension(%q) = false", name)
		}
	}
	if _, err := ForFile("x.csv"); err == nil {
		t.Error("expected csv to be unsupported")
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := map[string]string{
		"dir/notes.txt":       "notes",
		"雪国.tategaki.json.xz": "雪国",
		"report.final.md":     "report.final",
		"":                    "",
	}
	for in, want := range tests {
		if got := titleFromFilename(in); got != want {
			t.Errorf("titleFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportParser(t *testing.T) {
	src, err := (&TextParser{}).Parse(strings.NewReader("｜雪国《ゆきぐに》"), "x.txt")
	if err != nil {
		t.Fatal(err)
	}
	blob, err := content.Serialize(src.Tree)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := exportfile.Write(&buf, exportfile.FromDocument(store.Document{Title: "川端", Content: string(blob)}), true); err != nil {
		t.Fatal(err)
	}
	doc, err := (&ExportParser{}).Parse(&buf, "k.tategaki.json.xz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "川端" {
		t.Errorf("expected stored title, got %q", doc.Title)
	}
	if got := content.ExtractText(doc.Tree); got != "雪国\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestExportParser_CorruptContent(t *testing.T) {
	in := `{"title":"t","content":"{\"root\":1}"}`
	if _, err := (&ExportParser{}).Parse(strings.NewReader(in), "x.json"); err == nil {
		t.Error("expected corrupt content to fail")
	}
}

func TestTextTree(t *testing.T) {
	tree := textTree("一\n\n  二  \f三")
	if got := content.ExtractText(tree); got != "一\n二\n三\n" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestRecord_ConvertsText(t *testing.T) {
	doc, err := Record([]byte("｜雪国《ゆきぐに》\n"), "雪国.txt", Options{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if doc.Title != "雪国" {
		t.Errorf("unexpected title %q", doc.Title)
	}
	if n := content.CountCharacters(content.DefaultRegistry(), []byte(doc.Content)); n != 2 {
		t.Errorf("expected 2 characters, got %d", n)
	}
}

func TestRecord_KeepsExportMetadata(t *testing.T) {
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	var buf bytes.Buffer
	src := store.Document{Title: "古い", Content: "", CreatedAt: created}
	if err := exportfile.Write(&buf, exportfile.FromDocument(src), false); err != nil {
		t.Fatal(err)
	}
	doc, err := Record(buf.Bytes(), "old.tategaki.json", Options{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if doc.Title != "古い" || !doc.CreatedAt.Equal(created) {
		t.Errorf("unexpected record %+v", doc)
	}
}

func TestRecord_Errors(t *testing.T) {
	if _, err := Record([]byte(`{"title":"t"}`), "a.json", Options{}); !errors.Is(err, exportfile.ErrBadFile) {
		t.Errorf("missing content: expected ErrBadFile, got %v", err)
	}
	in := `{"title":"t","content":"{\"root\":1}"}`
	if _, err := Record([]byte(in), "b.json", Options{}); !errors.Is(err, content.ErrCorruptContent) {
		t.Errorf("corrupt content: expected ErrCorruptContent, got %v", err)
	}
	if _, err := Record([]byte("x"), "c.csv", Options{}); !errors.Is(err, exportfile.ErrBadFile) {
		t.Errorf("unsupported type: expected ErrBadFile, got %v", err)
	}
}
