package exportfile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/tategaki/internal/store"
)

func sample() store.Document {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	return store.Document{ID: "x", Title: "雪国", Content: `{"root":{"type":"root"}}`, CreatedAt: at, UpdatedAt: at}
}

func TestRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		if err := Write(&buf, FromDocument(sample()), compress); err != nil {
			t.Fatalf("Write(compress=%v): %v", compress, err)
		}
		if compress == bytes.HasPrefix(buf.Bytes(), []byte("{")) {
			t.Errorf("compress=%v produced unexpected framing", compress)
		}
		f, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read(compress=%v): %v", compress, err)
		}
		doc := f.Document()
		want := sample()
		want.ID = ""
		if doc != want {
			t.Errorf("compress=%v: got %+v, want %+v", compress, doc, want)
		}
	}
}

func TestReadRejectsIncompleteFiles(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing content", `{"title":"題"}`},
		{"missing title", `{"content":"{}"}`},
		{"not json", `題名`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.in)); !errors.Is(err, ErrBadFile) {
				t.Errorf("expected ErrBadFile, got %v", err)
			}
		})
	}
}

func TestEmptyTitleIsAccepted(t *testing.T) {
	f, err := Read(strings.NewReader(`{"title":"","content":""}`))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.Document().Title != "" {
		t.Error("expected empty title to survive decoding")
	}
}

func TestMissingContentLeavesStoreUntouched(t *testing.T) {
	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if f, err := Read(strings.NewReader(`{"title":"題"}`)); err == nil {
		if _, err := s.Import(context.Background(), f.Document()); err != nil {
			t.Fatalf("Import: %v", err)
		}
	}
	docs, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}
