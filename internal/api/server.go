package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/dgallion1/tategaki/internal/config"
	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/exportfile"
	"github.com/dgallion1/tategaki/internal/session"
	"github.com/dgallion1/tategaki/internal/stats"
	"github.com/dgallion1/tategaki/internal/store"
	"github.com/dgallion1/tategaki/internal/surface"
)

// Server is the HTTP API server for tategaki.
type Server struct {
	router   chi.Router
	store    *store.Store
	sessions *session.Manager
	stats    *stats.Set
	measurer surface.Measurer
	reg      *content.Registry
	upgrader websocket.Upgrader
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(st *store.Store, sessions *session.Manager, set *stats.Set, m surface.Measurer, log *slog.Logger, cfg config.Config) *Server {
	if m == nil {
		m = surface.FixedMeasurer{}
	}
	s := &Server{
		store:    st,
		sessions: sessions,
		stats:    set,
		measurer: m,
		reg:      content.DefaultRegistry(),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/documents", s.handleListDocuments)
		r.Post("/api/documents", s.handleCreateDocument)
		r.Post("/api/documents/import", s.handleImport)
		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Patch("/", s.handleUpdateDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Get("/export", s.handleExport)
			r.Get("/stats", s.handleDocumentStats)
			r.Get("/outline", s.handleOutline)
			r.Post("/paginate", s.handlePaginate)
			r.Get("/live", s.handleLive)
		})

		r.Get("/api/settings", s.handleGetSettings)
		r.Patch("/api/settings", s.handleUpdateSettings)
		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, "document not found", http.StatusNotFound)
	case errors.Is(err, content.ErrCorruptContent), errors.Is(err, content.ErrUnknownVersion):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, exportfile.ErrBadFile):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
