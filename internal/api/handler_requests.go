package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/bus"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/worker"
)

// BloodRequestBody is the body of POST /requests.
type BloodRequestBody struct {
	ID         string           `json:"id"`
	PatientRef string           `json:"patientRef"`
	Hospital   string           `json:"hospital"`
	BloodType  domain.BloodType `json:"bloodType"`
	Urgency    domain.Urgency   `json:"urgency"`
	Units      int              `json:"units"`
	Tags       []string         `json:"tags"`
	Location   *domain.GeoPoint `json:"location,omitempty"`

	// ProfileID selects the weight profile used for ranking.
	ProfileID string `json:"profileId,omitempty"`

	// Async hands ranking to the worker via a request.created event
	// instead of ranking inline.
	Async bool `json:"async,omitempty"`
}

// CreateRequestResponse is returned by POST /requests.
type CreateRequestResponse struct {
	Request    *domain.BloodRequest    `json:"request"`
	Evaluation *domain.MatchEvaluation `json:"evaluation,omitempty"`
	Queued     bool                    `json:"queued,omitempty"`
}

// CreateRequest handles POST /requests. The request is stored and either
// ranked inline (201) or queued for the worker (202).
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var body BloodRequestBody
	if err := decodeBody(r, requestSchema, &body); err != nil {
		h.fail(w, r, err, "")
		return
	}

	req := &domain.BloodRequest{
		ID:         body.ID,
		TenantID:   tenantID,
		PatientRef: body.PatientRef,
		Hospital:   body.Hospital,
		BloodType:  body.BloodType,
		Urgency:    body.Urgency,
		Units:      body.Units,
		Tags:       body.Tags,
		Location:   body.Location,
		Status:     domain.RequestOpen,
		CreatedAt:  h.scorer.Now(),
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Units == 0 {
		req.Units = 1
	}

	if err := h.repo.SaveRequest(ctx, tenantID, req); err != nil {
		h.fail(w, r, err, "request")
		return
	}

	zap.L().Info("blood request created",
		zap.String("tenant_id", tenantID),
		zap.String("request_id", req.ID),
		zap.String("blood_type", string(req.BloodType)),
		zap.String("urgency", string(req.Urgency)),
	)

	if body.Async && h.bus != nil {
		ev := domain.RequestCreatedEvent{RequestID: req.ID, ProfileID: body.ProfileID}
		if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicRequestCreated, ev); err != nil {
			h.fail(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusAccepted, CreateRequestResponse{Request: req, Queued: true})
		return
	}

	eval, err := h.pipeline.MatchRequest(ctx, tenantID, worker.MatchRequestInput{
		RequestID: req.ID,
		TraceID:   GetTraceID(ctx),
		ProfileID: body.ProfileID,
	})
	if err != nil {
		h.fail(w, r, err, "request")
		return
	}

	writeJSON(w, http.StatusCreated, CreateRequestResponse{Request: req, Evaluation: eval})
}

// GetRequest handles GET /requests/{id}.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := h.repo.GetRequest(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "request")
		return
	}

	resp := map[string]interface{}{
		"request": req,
		"rus":     h.scorer.RUS(req.UrgencyInput()),
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateRequestStatus handles PUT /requests/{id}/status.
func (h *Handler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := chi.URLParam(r, "id")

	var body struct {
		Status domain.RequestStatus `json:"status"`
	}
	if err := decodeBody(r, statusSchema, &body); err != nil {
		h.fail(w, r, err, "")
		return
	}

	if err := h.repo.UpdateRequestStatus(ctx, tenantID, requestID, body.Status); err != nil {
		h.fail(w, r, err, "request")
		return
	}

	if h.cache != nil {
		_ = h.cache.InvalidateEvaluation(ctx, tenantID, domain.SubjectRequest, requestID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     requestID,
		"status": string(body.Status),
	})
}

// MatchRunRequest is the optional body of POST /requests/{id}/matches.
type MatchRunRequest struct {
	Weights   *domain.MatchWeights `json:"weights,omitempty"`
	ProfileID string               `json:"profileId,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
}

// RunMatches handles POST /requests/{id}/matches: re-rank donors now.
func (h *Handler) RunMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body MatchRunRequest
	if err := decodeBody(r, matchRunSchema, &body); err != nil {
		h.fail(w, r, err, "")
		return
	}

	eval, err := h.pipeline.MatchRequest(ctx, GetTenantID(ctx), worker.MatchRequestInput{
		RequestID: chi.URLParam(r, "id"),
		TraceID:   GetTraceID(ctx),
		ProfileID: body.ProfileID,
		Weights:   body.Weights,
		Limit:     body.Limit,
	})
	if err != nil {
		h.fail(w, r, err, "request")
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// GetMatches handles GET /requests/{id}/matches: the latest ranking, from
// cache when possible.
func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := chi.URLParam(r, "id")

	if h.cache != nil {
		eval, err := h.cache.GetEvaluation(ctx, tenantID, domain.SubjectRequest, requestID)
		if err != nil {
			zap.L().Warn("evaluation cache read failed", zap.String("request_id", requestID), zap.Error(err))
		}
		if eval != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, eval)
			return
		}
	}

	eval, err := h.repo.GetLatestEvaluation(ctx, tenantID, domain.SubjectRequest, requestID)
	if err != nil {
		h.fail(w, r, err, "ranking")
		return
	}
	if h.cache != nil {
		_ = h.cache.SetEvaluation(ctx, tenantID, eval, h.scoring.EvaluationTTL)
	}

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, eval)
}
