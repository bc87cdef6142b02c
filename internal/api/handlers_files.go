package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/tategaki/internal/aozora"
	"github.com/dgallion1/tategaki/internal/exportfile"
	"github.com/dgallion1/tategaki/internal/parser"
)

// handleImport stores an uploaded file as a new document. Export files keep
// their title and creation time; other formats are converted.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	doc, err := parser.Record(data, filename, parser.Options{
		Registry:          s.reg,
		FallbackPdftotext: s.cfg.PDFFallbackPdftotext,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if title := r.FormValue("title"); title != "" {
		doc.Title = title
	}
	doc, err = s.store.Import(r.Context(), doc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("document imported", "doc_id", doc.ID, "filename", filename, "bytes", len(data))
	writeJSON(w, http.StatusCreated, doc)
}

// handleExport downloads a document as an export file (format=json, the
// default, or xz) or as Aozora style text (format=txt).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	id := chi.URLParam(r, "docID")
	doc, err := s.current(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	name := sanitizeFilename(doc.Title)
	switch format {
	case "json", "xz":
		compress := format == "xz"
		ext, ctype := exportfile.Ext, "application/json"
		if compress {
			ext, ctype = exportfile.XZExt, "application/x-xz"
		}
		var buf bytes.Buffer
		if err := exportfile.Write(&buf, exportfile.FromDocument(doc), compress); err != nil {
			s.writeError(w, err)
			return
		}
		attach(w, name+ext, ctype)
		w.Write(buf.Bytes())
	case "txt":
		tree, err := s.decode(doc)
		if err != nil {
			s.writeError(w, err)
			return
		}
		attach(w, name+".txt", "text/plain; charset=utf-8")
		if err := aozora.Write(w, tree); err != nil {
			s.log.Error("writing text export failed", "doc_id", doc.ID, "error", err)
		}
	default:
		jsonError(w, "unsupported export format: "+format, http.StatusBadRequest)
	}
}

func attach(w http.ResponseWriter, filename, ctype string) {
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
