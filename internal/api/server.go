// Package api exposes the HTTP interface for the price engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/service"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	maxRefreshBatch     = 50
)

// AuthConfig controls the optional API-key gate.
type AuthConfig struct {
	Enabled bool
	APIKey  string
}

// Server wires HTTP handlers to the service layer.
type Server struct {
	router chi.Router
	svc    *service.Service
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc *service.Service, auth AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(120 * time.Second))
	if auth.Enabled {
		r.Use(apiKeyMiddleware(auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.search)
		r.Post("/wishlist/refresh", s.refreshWishlist)
		r.Get("/games/{game_id}/history", s.gameHistory)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	result, err := s.svc.Search(r.Context(), req.Query, req.UserID)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, toSearchDTO(req.Query, result))
}

type refreshRequest struct {
	UserID  string   `json:"user_id"`
	GameIDs []string `json:"game_ids"`
}

func (s *Server) refreshWishlist(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if len(req.GameIDs) == 0 {
		writeError(w, http.StatusBadRequest, "game_ids is required")
		return
	}
	if len(req.GameIDs) > maxRefreshBatch {
		writeError(w, http.StatusBadRequest, "too many game_ids")
		return
	}
	outcome, err := s.svc.RefreshWishlist(r.Context(), req.UserID, req.GameIDs)
	if err != nil {
		s.logger.Error("wishlist refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "wishlist refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) gameHistory(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "game_id is required")
		return
	}
	limit := defaultHistoryLimit
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if val > maxHistoryLimit {
			val = maxHistoryLimit
		}
		limit = val
	}
	entries, err := s.svc.History(r.Context(), gameID, limit)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.logger.Error("history lookup failed", zap.String("game_id", gameID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_id": gameID,
		"history": toHistoryDTOs(entries),
	})
}
