package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlsearch/internal/frontier"
	"github.com/JakeFAU/crawlsearch/internal/store"
)

type enqueueRequest struct {
	URL string `json:"url"`
}

// enqueue seeds one URL at tier 0.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if err := s.deps.Frontier.Enqueue(r.Context(), req.URL, 0); err != nil {
		if errors.Is(err, frontier.ErrInvalidURL) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Enqueue failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"url": req.URL})
}

type domainView struct {
	ID           int64  `json:"id"`
	Hostname     string `json:"hostname"`
	Enabled      bool   `json:"enabled"`
	Tier         int    `json:"tier"`
	RobotsStatus string `json:"robots_status"`
}

func toDomainView(d store.Domain) domainView {
	status := "unchecked"
	switch {
	case d.RobotsPolicy == nil:
	case *d.RobotsPolicy == store.NoRobotsPolicy:
		status = "none"
	default:
		status = "found"
	}
	return domainView{ID: d.ID, Hostname: d.Hostname, Enabled: d.Enabled, Tier: d.Tier, RobotsStatus: status}
}

func (s *Server) listDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.deps.Repo.ListDomains(r.Context())
	if err != nil {
		s.logger.Error("List domains failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	views := make([]domainView, 0, len(domains))
	for _, d := range domains {
		views = append(views, toDomainView(d))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"domains": views})
}

type updateDomainRequest struct {
	Enabled *bool `json:"enabled"`
	Tier    *int  `json:"tier"`
}

// updateDomain applies a partial update; omitted fields keep their value.
func (s *Server) updateDomain(w http.ResponseWriter, r *http.Request) {
	host := strings.ToLower(chi.URLParam(r, "host"))
	var req updateDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Tier != nil && *req.Tier < 0 {
		s.writeError(w, http.StatusBadRequest, "tier must be >= 0")
		return
	}
	current, err := s.deps.Repo.GetDomainByHost(r.Context(), host)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	if err != nil {
		s.logger.Error("Get domain failed", zap.String("domain", host), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load domain")
		return
	}
	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}
	if req.Tier != nil {
		current.Tier = *req.Tier
	}
	if err := s.deps.Repo.UpdateDomain(r.Context(), host, current.Enabled, current.Tier); err != nil {
		s.logger.Error("Update domain failed", zap.String("domain", host), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to update domain")
		return
	}
	s.logger.Info("Domain updated",
		zap.String("domain", host),
		zap.Bool("enabled", current.Enabled),
		zap.Int("tier", current.Tier),
	)
	s.writeJSON(w, http.StatusOK, toDomainView(current))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Repo.Stats(r.Context())
	if err != nil {
		s.logger.Error("Stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
