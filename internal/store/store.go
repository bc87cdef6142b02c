// Package store persists document records and editor settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultTitle is given to documents created without one.
const DefaultTitle = "無題の文書"

var ErrNotFound = errors.New("store: document not found")

// Document is one stored record. Content is the serialized editor state and
// is empty for a freshly created document.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Patch lists the fields to change. Nil fields are left alone.
type Patch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Store is a SQLite-backed document store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_updated_at ON documents(updated_at DESC);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Open opens (creating if needed) the database at dsn. Use ":memory:" for a
// private in-memory store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dsn, err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) stamp() time.Time { return s.now().UTC().Truncate(time.Millisecond) }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Create inserts an empty document. A blank title becomes DefaultTitle.
func (s *Store) Create(ctx context.Context, title string) (Document, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := s.stamp()
	doc := Document{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	if err := s.insert(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Store) insert(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, toMillis(doc.CreatedAt), toMillis(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (Document, error) {
	var (
		doc              Document
		created, updated int64
	)
	if err := sc.Scan(&doc.ID, &doc.Title, &doc.Content, &created, &updated); err != nil {
		return Document{}, err
	}
	doc.CreatedAt, doc.UpdatedAt = fromMillis(created), fromMillis(updated)
	return doc, nil
}

// List returns all documents, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM documents ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Update applies p and refreshes UpdatedAt. Every call counts as a change.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, err
	}
	if p.Title != nil {
		doc.Title = *p.Title
	}
	if p.Content != nil {
		doc.Content = *p.Content
	}
	doc.UpdatedAt = s.stamp()
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		doc.Title, doc.Content, toMillis(doc.UpdatedAt), id); err != nil {
		return Document{}, fmt.Errorf("updating document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit: %w", err)
	}
	return doc, nil
}

// SaveContent stores the serialized content and title of a document.
func (s *Store) SaveContent(ctx context.Context, id, content, title string) error {
	_, err := s.Update(ctx, id, Patch{Title: &title, Content: &content})
	return err
}

// Delete removes a document. Deleting a missing document is ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Import stores doc as a new record with a fresh id. A zero CreatedAt
// becomes now; UpdatedAt is always now.
func (s *Store) Import(ctx context.Context, doc Document) (Document, error) {
	now := s.stamp()
	doc.ID = uuid.NewString()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.CreatedAt = doc.CreatedAt.UTC().Truncate(time.Millisecond)
	doc.UpdatedAt = now
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = DefaultTitle
	}
	if err := s.insert(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
