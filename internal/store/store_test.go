package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func (s *Store) putRawSettings(ctx context.Context, raw string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, raw)
	return err
}

func TestCreateDefaults(t *testing.T) {
	s := newStore(t)
	doc, err := s.Create(context.Background(), "  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.Title != DefaultTitle {
		t.Errorf("expected default title, got %q", doc.Title)
	}
	if doc.Content != "" {
		t.Errorf("new documents start empty, got %q", doc.Content)
	}
	if _, err := uuid.Parse(doc.ID); err != nil {
		t.Errorf("id should be a uuid: %v", err)
	}
	if !doc.CreatedAt.Equal(doc.UpdatedAt) {
		t.Error("timestamps should match on creation")
	}

	got, err := s.Get(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != doc {
		t.Errorf("stored %+v, read back %+v", doc, got)
	}
}

func TestUpdateRefreshesTimestamp(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, "草稿")
	content := `{"root":{}}`
	upd, err := s.Update(ctx, doc.ID, Patch{Content: &content})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Title != "草稿" || upd.Content != content {
		t.Errorf("unexpected update result %+v", upd)
	}
	if !upd.UpdatedAt.After(doc.UpdatedAt) {
		t.Errorf("UpdatedAt not refreshed: %v -> %v", doc.UpdatedAt, upd.UpdatedAt)
	}
	if !upd.CreatedAt.Equal(doc.CreatedAt) {
		t.Error("CreatedAt must not change")
	}
}

func TestListOrdersByUpdatedAtDesc(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, "一")
	b, _ := s.Create(ctx, "二")
	if err := s.SaveContent(ctx, a.ID, "x", "一改"); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != a.ID || docs[1].ID != b.ID {
		t.Fatalf("unexpected order: %+v", docs)
	}
	if docs[0].Title != "一改" {
		t.Errorf("expected title saved, got %q", docs[0].Title)
	}
}

func TestMissingDocuments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	title := "x"
	if _, err := s.Update(ctx, "nope", Patch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, "消す")
	if err := s.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	docs, _ := s.List(ctx)
	if len(docs) != 0 {
		t.Errorf("expected empty list, got %d", len(docs))
	}
}

func TestImportAssignsFreshID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc, err := s.Import(ctx, Document{ID: "old", Title: "輸入", Content: "{}", CreatedAt: created})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if doc.ID == "old" {
		t.Error("import must not reuse the file's id")
	}
	if !doc.CreatedAt.Equal(created) {
		t.Errorf("expected CreatedAt kept, got %v", doc.CreatedAt)
	}
	got, err := s.Get(ctx, doc.ID)
	if err != nil || got.Content != "{}" {
		t.Fatalf("imported document not stored: %+v %v", got, err)
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	st, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if !st.ShowPageBreak {
		t.Error("showPageBreak should default to true")
	}
	off := false
	if st, err = s.UpdateSettings(ctx, SettingsPatch{ShowPageBreak: &off}); err != nil || st.ShowPageBreak {
		t.Fatalf("UpdateSettings: %+v %v", st, err)
	}
	if st, _ = s.Settings(ctx); st.ShowPageBreak {
		t.Error("setting did not persist")
	}
}

func TestSettingsMalformedFallsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.putRawSettings(ctx, "{broken"); err != nil {
		t.Fatalf("putRawSettings: %v", err)
	}
	st, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if st != DefaultSettings() {
		t.Errorf("expected defaults, got %+v", st)
	}
	if err := s.putRawSettings(ctx, `{"other":1}`); err != nil {
		t.Fatalf("putRawSettings: %v", err)
	}
	if st, _ := s.Settings(ctx); !st.ShowPageBreak {
		t.Error("absent showPageBreak should default to true")
	}
}
