package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/history"
	"github.com/lifelink-community/lifelink/internal/ranking"
	"github.com/lifelink-community/lifelink/internal/repository"
	"github.com/lifelink-community/lifelink/internal/rules"
	"github.com/lifelink-community/lifelink/internal/scoring"
	"github.com/lifelink-community/lifelink/internal/worker"
)

// GlobalTenantID is used for screening rules and weight profiles that apply
// to all tenants.
const GlobalTenantID = "*"

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Scorer    *scoring.Scorer
	Screening *rules.Engine
	Profiles  *rules.ProfileEngine
	Ranker    *ranking.Ranker
	Pipeline  *worker.Pipeline
	History   *history.Service
	Scoring   domain.ScoringConfig
	Version   string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scorer    *scoring.Scorer
	screening *rules.Engine
	profiles  *rules.ProfileEngine
	ranker    *ranking.Ranker
	pipeline  *worker.Pipeline
	history   *history.Service
	scoring   domain.ScoringConfig
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Scorer == nil {
		d.Scorer = scoring.NewScorer(nil)
	}
	return &Handler{
		repo:      d.Repo,
		cache:     d.Cache,
		bus:       d.Bus,
		scorer:    d.Scorer,
		screening: d.Screening,
		profiles:  d.Profiles,
		ranker:    d.Ranker,
		pipeline:  d.Pipeline,
		history:   d.History,
		scoring:   d.Scoring,
		version:   d.Version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := h.repo != nil && h.ranker != nil
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}

// GetEvaluation retrieves a ranking by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	evalID := chi.URLParam(r, "id")

	eval, err := h.repo.GetEvaluation(ctx, GetTenantID(ctx), evalID)
	if err != nil {
		h.fail(w, r, err, "evaluation")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// fail maps service errors to HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownBloodType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scoring.ErrInvalidWeights):
		writeError(w, http.StatusBadRequest, scoring.ErrInvalidWeights.Error())
	case errors.Is(err, ranking.ErrUnknownProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, worker.ErrRequestClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	default:
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", GetTraceID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
