// Package server exposes the sync triggers and read projections as a small
// JSON API. All matching semantics live in the service layer; handlers only
// translate HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"hoopsync/internal/config"
	"hoopsync/internal/constants"
	"hoopsync/internal/domain"
	"hoopsync/internal/middleware"
	"hoopsync/internal/service"

	"github.com/rs/zerolog"
)

type Server struct {
	sync     *service.SyncService
	resolver *service.PlayerResolver
	cfg      *config.Config
	logger   zerolog.Logger
}

func New(sync *service.SyncService, resolver *service.PlayerResolver, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{sync: sync, resolver: resolver, cfg: cfg, logger: logger}
}

// Routes registers every endpoint on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sync/games", s.handleSyncGames)
	mux.HandleFunc("POST /v1/sync/odds", s.handleSyncOdds)
	mux.HandleFunc("POST /v1/sync/player-stats", s.handleSyncPlayerStats)
	mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	mux.HandleFunc("POST /v1/players/resolve", s.handleResolvePlayers)
	mux.HandleFunc("GET /v1/sync/status", s.handleSyncStatus)
	mux.HandleFunc("GET /v1/review-queue", s.handleReviewQueue)
	mux.HandleFunc("GET /v1/games/matched", s.handleMatchedGames)
}

func (s *Server) handleSyncGames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.SyncTimeout)
	defer cancel()

	lookback := queryInt(r, "lookback_days", s.cfg.LookbackDays)
	lookahead := queryInt(r, "lookahead_days", s.cfg.LookaheadDays)

	result, err := s.sync.SyncGames(ctx, lookback, lookahead)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncOdds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.SyncTimeout)
	defer cancel()

	stored, err := s.sync.SyncOdds(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"outcomes_stored": stored})
}

func (s *Server) handleSyncPlayerStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.SyncTimeout)
	defer cancel()

	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	count, err := s.sync.SyncPlayerStats(ctx, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"players_processed": count})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.SyncTimeout)
	defer cancel()

	limit := queryInt(r, "limit", constants.ReviewQueueLimit)
	result, err := s.sync.ReconcileMatches(ctx, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type resolveRequest struct {
	Names    []string `json:"names"`
	Source   string   `json:"source"`
	Team     string   `json:"team,omitempty"`
	Position string   `json:"position,omitempty"`
}

func (s *Server) handleResolvePlayers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Names) == 0 || req.Source == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "names and source are required"})
		return
	}

	var pctx *domain.PlayerContext
	if req.Team != "" || req.Position != "" {
		pctx = &domain.PlayerContext{Team: req.Team, Position: req.Position}
	}

	results, err := s.resolver.BatchResolvePlayers(ctx, req.Names, req.Source, pctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	report, err := s.sync.GetSyncStatus(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	limit := queryInt(r, "limit", constants.ReviewQueueLimit)
	queue, err := s.sync.GetManualReviewQueue(ctx, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, queue)
}

func (s *Server) handleMatchedGames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	var date *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		date = &parsed
	}

	games, err := s.sync.GetMatchedGames(ctx, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	body := map[string]string{"error": err.Error()}
	if id := middleware.RequestIDFrom(r.Context()); id != "" {
		body["request_id"] = id
	}
	s.writeJSON(w, http.StatusInternalServerError, body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
