package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/tategaki/internal/pagination"
	"github.com/dgallion1/tategaki/internal/store"
	"github.com/dgallion1/tategaki/internal/surface"
)

// handlePaginate runs one pass over the stored content for the posted
// viewport. Unset typography falls back to the configured defaults.
func (s *Server) handlePaginate(w http.ResponseWriter, r *http.Request) {
	var vp surface.Viewport
	if err := json.NewDecoder(r.Body).Decode(&vp); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid viewport: "+err.Error(), http.StatusBadRequest)
		return
	}
	if vp.FontSize <= 0 {
		vp.FontSize = s.cfg.FontSize
	}
	if vp.LineHeight <= 0 {
		vp.LineHeight = s.cfg.LineHeight
	}

	_, tree, err := s.tree(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	settings, err := s.store.Settings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	start := time.Now()
	engine := pagination.NewEngine(s.cfg.PageWidth, s.cfg.ReferenceHeight, s.log)
	layout := surface.Lay(tree, vp, s.measurer)
	res := engine.Run(tree, layout, pagination.NewMarkerSet())
	s.stats.Window("preview").Since(start)
	writeJSON(w, http.StatusOK, map[string]any{
		"result":        res,
		"indicators":    pagination.Indicators(res.Markers),
		"columns":       layout.Columns(),
		"extent":        layout.Extent(),
		"showPageBreak": settings.ShowPageBreak,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Settings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleUpdateSettings stores the preferences and applies them to open
// sessions.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p store.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	st, err := s.store.UpdateSettings(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.sessions.SetShowPageBreak(st.ShowPageBreak)
	writeJSON(w, http.StatusOK, st)
}
