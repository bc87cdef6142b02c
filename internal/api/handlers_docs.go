package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/editor"
	"github.com/dgallion1/tategaki/internal/preview"
	"github.com/dgallion1/tategaki/internal/store"
)

// documentSummary is a list entry: the record without its content.
type documentSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Characters int       `json:"characters"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (s *Server) summarize(doc store.Document) documentSummary {
	return documentSummary{
		ID:         doc.ID,
		Title:      doc.Title,
		Characters: content.CountCharacters(s.reg, []byte(doc.Content)),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// handleListDocuments lists documents, most recently updated first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.summarize(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := s.store.Create(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.current(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleUpdateDocument changes the title or content. Content must decode;
// an open live session takes the change as an import.
func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docID")
	var p store.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if p.Content != nil && *p.Content != "" {
		if _, err := s.reg.Deserialize([]byte(*p.Content)); err != nil {
			s.writeError(w, err)
			return
		}
	}

	ctx := r.Context()
	if sess, ok := s.sessions.Lookup(id); ok {
		if p.Content != nil {
			blob := []byte(*p.Content)
			if len(blob) == 0 {
				blob, _ = s.reg.Serialize(content.NewDocument())
			}
			if err := sess.Editor().Load(blob, editor.TagImport); err != nil {
				s.writeError(w, err)
				return
			}
		}
		if p.Title != nil {
			sess.SetTitle(*p.Title)
		}
		if err := sess.Flush(ctx); err != nil {
			s.writeError(w, err)
			return
		}
		doc, err := s.store.Get(ctx, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	doc, err := s.store.Update(ctx, id, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument closes any live session and removes the record.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docID")
	s.sessions.Evict(id)
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	_, tree, err := s.tree(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content.Measure(tree))
}

// handleOutline returns heading-aware sections and an excerpt.
func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	doc, tree, err := s.tree(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg := preview.DefaultConfig()
	q := r.URL.Query()
	if v := q.Get("section_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SectionSize = n
		}
	}
	if v := q.Get("excerpt_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExcerptSize = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       doc.ID,
		"title":    doc.Title,
		"excerpt":  preview.Excerpt(tree, cfg.ExcerptSize),
		"sections": preview.Outline(tree, cfg),
	})
}

// current returns the stored record, saving a live session's pending edits
// first.
func (s *Server) current(ctx context.Context, id string) (store.Document, error) {
	if sess, ok := s.sessions.Lookup(id); ok {
		if err := sess.Flush(ctx); err != nil {
			s.log.Warn("flushing live session failed", "doc_id", id, "error", err)
		}
	}
	return s.store.Get(ctx, id)
}

// tree returns the record and its decoded content. A document that was
// never saved decodes as an empty document.
func (s *Server) tree(ctx context.Context, id string) (store.Document, *content.Tree, error) {
	doc, err := s.current(ctx, id)
	if err != nil {
		return store.Document{}, nil, err
	}
	t, err := s.decode(doc)
	if err != nil {
		return store.Document{}, nil, err
	}
	return doc, t, nil
}

func (s *Server) decode(doc store.Document) (*content.Tree, error) {
	if doc.Content == "" {
		return content.NewDocument(), nil
	}
	return s.reg.Deserialize([]byte(doc.Content))
}
