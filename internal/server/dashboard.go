package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lol-dashboard/internal/analysis"
	"lol-dashboard/internal/constants"
	"lol-dashboard/internal/domain"
	"lol-dashboard/internal/feed"
	"lol-dashboard/internal/identity"
	"lol-dashboard/internal/live"

	"github.com/rs/zerolog"
)

// DashboardServer exposes the orchestration core as plain JSON data: the
// snapshot, per-match analysis state and the live flag. The presentation
// layer re-renders on its own; no event contracts here.
type DashboardServer struct {
	loader     *feed.Loader
	controller *analysis.Controller
	resolver   *identity.Resolver
	live       *live.Registry
	logger     zerolog.Logger
}

func NewDashboardServer(loader *feed.Loader, controller *analysis.Controller, resolver *identity.Resolver, liveReg *live.Registry, logger zerolog.Logger) *DashboardServer {
	return &DashboardServer{
		loader:     loader,
		controller: controller,
		resolver:   resolver,
		live:       liveReg,
		logger:     logger,
	}
}

func (s *DashboardServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("POST /api/dashboard/more", s.handleLoadMore)
	mux.HandleFunc("GET /api/popup", s.handlePopup)
	mux.HandleFunc("POST /api/analysis", s.handleStartAnalysis)
	mux.HandleFunc("GET /api/analysis", s.handleAnalysisResult)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("DELETE /api/live", s.handleUnwatch)
	mux.HandleFunc("DELETE /api/identity", s.handleUnlink)
}

type handleParams struct {
	name   string
	tag    string
	region string
}

func parseHandle(r *http.Request) (handleParams, bool) {
	p := handleParams{
		name:   r.URL.Query().Get("name"),
		tag:    r.URL.Query().Get("tag"),
		region: r.URL.Query().Get("region"),
	}
	return p, p.name != "" && p.tag != "" && p.region != ""
}

func (s *DashboardServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := parseHandle(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "name, tag and region are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	// The front-end derives this from navigation timing: a hard reload is
	// the user's explicit signal for current data.
	hardReload := r.URL.Query().Get("hard_reload") == "1"

	snap, err := s.loader.LoadDashboard(ctx, p.name, p.tag, p.region, hardReload)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snap.Matches = s.controller.Annotate(snap.Matches)
	writeJSON(w, http.StatusOK, snap)
}

func (s *DashboardServer) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	p, ok := parseHandle(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "name, tag and region are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	snap, err := s.loader.LoadMore(ctx, p.name, p.tag, p.region)
	if errors.Is(err, domain.ErrLoadInFlight) {
		// Duplicate scroll trigger; the first request will deliver.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snap.Matches = s.controller.Annotate(snap.Matches)
	writeJSON(w, http.StatusOK, snap)
}

func (s *DashboardServer) handlePopup(w http.ResponseWriter, r *http.Request) {
	p, ok := parseHandle(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "name, tag and region are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	popup, err := s.loader.LoadPopup(ctx, p.name, p.tag, p.region)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, popup)
}

type startAnalysisRequest struct {
	MatchID string `json:"match_id"`
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	Region  string `json:"region"`
}

func (s *DashboardServer) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req startAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MatchID == "" {
		writeError(w, http.StatusBadRequest, "match_id, name, tag and region are required")
		return
	}

	// Identity token supplied by the external auth provider.
	userID := r.Header.Get("X-User-ID")

	rec, _, err := s.resolver.Resolve(r.Context(), req.Name, req.Tag, req.Region)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	job, err := s.controller.Start(r.Context(), req.MatchID, rec, userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *DashboardServer) handleAnalysisResult(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match_id")
	if matchID == "" {
		writeError(w, http.StatusBadRequest, "match_id is required")
		return
	}

	result, ok := s.controller.Result(r.Context(), matchID)
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis result for match")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *DashboardServer) handleLive(w http.ResponseWriter, r *http.Request) {
	p, ok := parseHandle(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "name, tag and region are required")
		return
	}

	rec, _, err := s.resolver.Resolve(r.Context(), p.name, p.tag, p.region)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	session := s.live.Watch(rec.StableID, rec.Region)
	writeJSON(w, http.StatusOK, session.Status())
}

func (s *DashboardServer) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	p, ok := parseHandle(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "name, tag and region are required")
		return
	}

	rec, _, err := s.resolver.Resolve(r.Context(), p.name, p.tag, p.region)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.live.Unwatch(rec.StableID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *DashboardServer) handleUnlink(w http.ResponseWriter, r *http.Request) {
	p, ok := parseHandle(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "name, tag and region are required")
		return
	}

	if err := s.resolver.Unlink(r.Context(), p.name, p.tag, p.region); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unlink account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *DashboardServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "player not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited, try again shortly")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "sign in required")
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "not enough credits")
	case errors.Is(err, domain.ErrAnalysisInFlight):
		writeError(w, http.StatusConflict, "analysis already running for this match")
	case errors.Is(err, domain.ErrAnalysisNotRetryable):
		writeError(w, http.StatusConflict, "failed analysis cannot be retried")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
