package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/config"
	"github.com/JakeFAU/crawlsearch/internal/metrics"
	"github.com/JakeFAU/crawlsearch/internal/query"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

const requestTimeout = 30 * time.Second

// Searcher ranks pages for a free-text query.
type Searcher interface {
	Search(ctx context.Context, text string) (query.Response, error)
}

// Enqueuer seeds URLs into the frontier.
type Enqueuer interface {
	Enqueue(ctx context.Context, rawURL string, tier int) error
}

// AdminRepository is the slice of the store the admin endpoints touch.
type AdminRepository interface {
	ListDomains(ctx context.Context) ([]store.Domain, error)
	GetDomainByHost(ctx context.Context, hostname string) (store.Domain, error)
	UpdateDomain(ctx context.Context, hostname string, enabled bool, tier int) error
	Stats(ctx context.Context) (store.Stats, error)
}

// Deps are the collaborators served over HTTP.
type Deps struct {
	Search   Searcher
	Frontier Enqueuer
	Repo     AdminRepository
}

// Server wires HTTP handlers to the query engine and the store.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer builds the router. Admin routes require X-API-Key when auth is
// enabled.
func NewServer(deps Deps, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(withRequestID, accessLog(logger), recovery(logger), metrics.Middleware, deadline(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search", s.search)
		r.Route("/admin", func(r chi.Router) {
			if auth.Enabled {
				r.Use(requireAPIKey(auth.APIKey))
			}
			r.Post("/enqueue", s.enqueue)
			r.Get("/domains", s.listDomains)
			r.Put("/domains/{host}", s.updateDomain)
			r.Get("/stats", s.stats)
		})
	})

	s.router = r
	return s
}

// Handler exposes the router to an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the store answers a cheap query.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Repo == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if _, err := s.deps.Repo.Stats(r.Context()); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchResponse struct {
	Query     string         `json:"query"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Results   []query.Result `json:"results"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if !params.Has("q") {
		s.writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	text := params.Get("q")
	resp, err := s.deps.Search.Search(r.Context(), text)
	if err != nil {
		s.logger.Error("Search failed", zap.String("query", text), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	results := resp.Results
	if results == nil {
		results = []query.Result{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Query:     resp.Query,
		ElapsedMS: resp.Elapsed.Milliseconds(),
		Results:   results,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, errorBody(msg))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("Write JSON failed", zap.Error(err))
	}
}
