package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/collection"
	"github.com/aristath/equityscope/internal/modules/gating"
	"github.com/aristath/equityscope/internal/modules/universe"
)

const defaultHistoryLimit = 20

// runGuard serializes collection runs: one at a time, last report kept for
// the report endpoint.
type runGuard struct {
	mu      sync.Mutex
	running bool
	last    *collection.Report
}

func (g *runGuard) tryStart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *runGuard) finish(report *collection.Report) {
	g.mu.Lock()
	g.running = false
	g.last = report
	g.mu.Unlock()
}

func (g *runGuard) status() (bool, *collection.Report) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running, g.last
}

// --- universes ---

func (s *Server) handleListUniverses(w http.ResponseWriter, r *http.Request) {
	universes, err := s.universe.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, universes)
}

type createUniverseRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

func (s *Server) handleCreateUniverse(w http.ResponseWriter, r *http.Request) {
	var req createUniverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("id and name are required"))
		return
	}

	u, err := s.universe.CreateCustom(req.ID, req.Name, req.Symbols)
	if err != nil {
		if errors.Is(err, universe.ErrInvalidSymbol) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	u, err := s.universe.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, universe.ErrUniverseNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUniverse(w http.ResponseWriter, r *http.Request) {
	err := s.universe.DeleteCustom(chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, universe.ErrProtectedUniverse):
		s.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, universe.ErrUniverseNotFound):
		s.writeError(w, http.StatusNotFound, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleUniverseMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.universe.Members(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, universe.ErrUniverseNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"symbols": members})
}

type universeSymbolsRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handleAddSymbols(w http.ResponseWriter, r *http.Request) {
	s.handleUniverseEdit(w, r, s.universe.AddSymbols)
}

func (s *Server) handleRemoveSymbols(w http.ResponseWriter, r *http.Request) {
	s.handleUniverseEdit(w, r, s.universe.RemoveSymbols)
}

func (s *Server) handleUniverseEdit(w http.ResponseWriter, r *http.Request, edit func(string, []string) (*domain.Universe, error)) {
	var req universeSymbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Symbols) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("symbols are required"))
		return
	}

	u, err := edit(chi.URLParam(r, "id"), req.Symbols)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, u)
	case errors.Is(err, universe.ErrInvalidSymbol):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, universe.ErrProtectedUniverse):
		s.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, universe.ErrUniverseNotFound):
		s.writeError(w, http.StatusNotFound, err)
	default:
		s.writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func (s *Server) handleRefreshIndex(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	diff, err := s.universe.RefreshIndex(r.Context(), force)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, diff)
}

// --- collection ---

type collectionRunRequest struct {
	UniverseID string            `json:"universe_id,omitempty"`
	Symbols    []string          `json:"symbols,omitempty"`
	Types      []domain.DataType `json:"types,omitempty"`
}

func (s *Server) resolveSymbols(universeID string, symbols []string) ([]string, error) {
	if len(symbols) > 0 {
		return symbols, nil
	}
	if universeID == "" {
		universeID = domain.SP500UniverseID
	}
	return s.universe.Members(universeID)
}

// handleCollectionRun starts a collection pass in the background and
// answers 202 with an ETA. Progress is observable on the event stream,
// the final report at /collection/report.
func (s *Server) handleCollectionRun(w http.ResponseWriter, r *http.Request) {
	var req collectionRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, t := range req.Types {
		if !validDataType(t) {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown data type %q", t))
			return
		}
	}

	symbols, err := s.resolveSymbols(req.UniverseID, req.Symbols)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if len(symbols) == 0 {
		s.writeError(w, http.StatusUnprocessableEntity, errors.New("no symbols to collect"))
		return
	}

	if !s.runs.tryStart() {
		s.writeError(w, http.StatusConflict, errors.New("a collection run is already in progress"))
		return
	}

	go func() {
		report := s.collector.Collect(context.Background(), symbols, req.Types)
		s.runs.finish(report)
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"symbols":  len(symbols),
		"estimate": s.collector.EstimateDuration(len(symbols), req.Types).String(),
	})
}

func (s *Server) handleCollectionEstimate(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("symbols"))
	if err != nil || count < 1 {
		s.writeError(w, http.StatusBadRequest, errors.New("symbols must be a positive integer"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"symbols":  count,
		"estimate": s.collector.EstimateDuration(count, nil).String(),
	})
}

func (s *Server) handleCollectionReport(w http.ResponseWriter, r *http.Request) {
	running, last := s.runs.status()
	if last == nil && !running {
		s.writeError(w, http.StatusNotFound, errors.New("no collection run recorded"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running": running,
		"report":  last,
	})
}

func validDataType(t domain.DataType) bool {
	for _, known := range domain.CollectionOrder() {
		if t == known {
			return true
		}
	}
	return false
}

// --- gating ---

func componentParam(r *http.Request) (domain.Component, error) {
	c := domain.Component(chi.URLParam(r, "component"))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown component %q", c)
	}
	return c, nil
}

func (s *Server) handleGateEvaluateAll(w http.ResponseWriter, r *http.Request) {
	evals, err := s.gates.EvaluateAll(chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evals)
}

func (s *Server) handleGateEvaluate(w http.ResponseWriter, r *http.Request) {
	component, err := componentParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	eval, err := s.gates.Evaluate(chi.URLParam(r, "symbol"), component)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, eval)
}

type approvalRequest struct {
	Approver      string `json:"approver"`
	Reason        string `json:"reason,omitempty"`
	DurationHours int    `json:"duration_hours,omitempty"`
}

func (s *Server) handleGateApprove(w http.ResponseWriter, r *http.Request) {
	component, err := componentParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Approver == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("approver is required"))
		return
	}

	if req.DurationHours < 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("duration_hours must be positive"))
		return
	}
	ttl := time.Duration(req.DurationHours) * time.Hour
	gate, err := s.gates.ApproveFor(chi.URLParam(r, "symbol"), component, req.Approver, ttl)
	if err != nil {
		if errors.Is(err, gating.ErrGateBlocked) {
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"error": err.Error(),
				"gate":  gate,
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gate)
}

func (s *Server) handleGateReject(w http.ResponseWriter, r *http.Request) {
	component, err := componentParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Approver == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("approver is required"))
		return
	}

	gate, err := s.gates.Reject(chi.URLParam(r, "symbol"), component, req.Approver, req.Reason)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gate)
}

func (s *Server) handleGateHistory(w http.ResponseWriter, r *http.Request) {
	component, err := componentParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	gates, err := s.gates.History(chi.URLParam(r, "symbol"), component, limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gates)
}

func (s *Server) handleVersionHistory(w http.ResponseWriter, r *http.Request) {
	component, err := componentParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	versions, err := s.gates.VersionHistory(chi.URLParam(r, "symbol"), component, limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleActiveVersion(w http.ResponseWriter, r *http.Request) {
	component, err := componentParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	version, snapshot, err := s.gates.ActiveVersion(chi.URLParam(r, "symbol"), component)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if version == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no active version"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":  version,
		"snapshot": snapshot,
	})
}

func (s *Server) handleGateExpire(w http.ResponseWriter, r *http.Request) {
	expired, err := s.gates.ExpireOverdue()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"expired": expired})
}

// handleAdmission checks scoring admission. An optional comma-separated
// "components" query restricts the check; the default is every component.
func (s *Server) handleAdmission(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var required []domain.Component
	if raw := r.URL.Query().Get("components"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			c := domain.Component(strings.TrimSpace(part))
			if !c.IsValid() {
				s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown component %q", c))
				return
			}
			required = append(required, c)
		}
	}

	allowed, reasons, err := s.gates.IsAnalysisAllowed(symbol, required...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"allowed": allowed,
		"reasons": reasons,
	})
}

// --- scoring ---

type scoreRunRequest struct {
	UniverseID string   `json:"universe_id,omitempty"`
	Symbols    []string `json:"symbols,omitempty"`
}

func (s *Server) handleScoreRun(w http.ResponseWriter, r *http.Request) {
	var req scoreRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbols, err := s.resolveSymbols(req.UniverseID, req.Symbols)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.scorer.ScoreUniverse(symbols))
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	metrics, err := s.metrics.Latest(symbol)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if metrics == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no scores for %s", symbol))
		return
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleTopScores(w http.ResponseWriter, r *http.Request) {
	top, err := s.metrics.TopComposites(limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, top)
}

// --- configuration ---

func (s *Server) handleMethodology(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":               s.cfg.Methodology.Version,
		"component_weights":     s.cfg.Methodology.ComponentWeights,
		"min_component_quality": s.cfg.Methodology.MinComponentQuality,
		"fundamental_weights":   s.cfg.Methodology.FundamentalWeights,
		"quality_weights":       s.cfg.Methodology.QualityWeights,
		"growth_weights":        s.cfg.Methodology.GrowthWeights,
		"sentiment_weights":     s.cfg.Methodology.SentimentWeights,
		"staleness_limits":      s.cfg.Methodology.Staleness,
		"rate_limits":           s.cfg.Methodology.RateLimits,
		"credentials":           s.cfg.Credentials,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.gates.Rules()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleSourceStatuses(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.statuses.All())
}

func limitParam(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultHistoryLimit
}
