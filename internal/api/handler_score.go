package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// ScoreResponse carries a single computed score.
type ScoreResponse struct {
	Score     float64                     `json:"score"`
	Breakdown *scoring.ReadinessBreakdown `json:"breakdown,omitempty"`
	Weights   *domain.MatchWeights        `json:"weights,omitempty"`
}

// ScoreUrgency handles POST /score/urgency. A missing createdAt means the
// request was posted now.
func (h *Handler) ScoreUrgency(w http.ResponseWriter, r *http.Request) {
	var in domain.RequestUrgencyInput
	if err := decodeBody(r, urgencyScoreSchema, &in); err != nil {
		h.fail(w, r, err, "")
		return
	}

	now := h.scorer.Now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}

	writeJSON(w, http.StatusOK, ScoreResponse{Score: scoring.RequestUrgency(in, now)})
}

// ScoreReadiness handles POST /score/readiness.
func (h *Handler) ScoreReadiness(w http.ResponseWriter, r *http.Request) {
	var in domain.DonorReadinessInput
	if err := decodeBody(r, readinessScoreSchema, &in); err != nil {
		h.fail(w, r, err, "")
		return
	}

	breakdown := scoring.ReadinessComponents(in, h.scorer.Now())
	writeJSON(w, http.StatusOK, ScoreResponse{
		Score:     scoring.DonorReadiness(in, h.scorer.Now()),
		Breakdown: &breakdown,
	})
}

// MatchScoreRequest is the body of POST /score/match.
type MatchScoreRequest struct {
	RUS              float64              `json:"rus"`
	DRS              float64              `json:"drs"`
	DistanceKm       float64              `json:"distanceKm"`
	Weights          *domain.MatchWeights `json:"weights,omitempty"`
	ProfileID        string               `json:"profileId,omitempty"`
	RequestBloodType domain.BloodType     `json:"requestBloodType"`
	DonorBloodType   domain.BloodType     `json:"donorBloodType"`
}

// ScoreMatch handles POST /score/match. Weights resolve explicit > profile
// > configured default.
func (h *Handler) ScoreMatch(w http.ResponseWriter, r *http.Request) {
	var in MatchScoreRequest
	if err := decodeBody(r, matchScoreSchema, &in); err != nil {
		h.fail(w, r, err, "")
		return
	}

	resolved, err := h.ranker.ResolveWeights(in.Weights, in.ProfileID)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	score, err := h.scorer.Match(in.RUS, in.DRS, in.DistanceKm, resolved.Weights, in.RequestBloodType, in.DonorBloodType)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, ScoreResponse{Score: score, Weights: &resolved.Weights})
}

// ScoreNormalize handles POST /score/normalize.
func (h *Handler) ScoreNormalize(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Scores []float64 `json:"scores"`
	}
	if err := decodeBody(r, normalizeSchema, &in); err != nil {
		h.fail(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]float64{
		"normalized": scoring.NormalizeScores(in.Scores),
	})
}

// CompatibilityResponse lists who a blood type can give to and receive from.
type CompatibilityResponse struct {
	BloodType      domain.BloodType   `json:"bloodType"`
	CanDonateTo    []domain.BloodType `json:"canDonateTo"`
	CanReceiveFrom []domain.BloodType `json:"canReceiveFrom"`
}

// Compatibility handles GET /compatibility/{bloodType}. The "+" must be
// percent-encoded (O%2B).
func (h *Handler) Compatibility(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "bloodType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid blood type")
		return
	}

	bt, err := domain.ParseBloodType(raw)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, CompatibilityResponse{
		BloodType:      bt,
		CanDonateTo:    scoring.CompatibleRecipients(bt),
		CanReceiveFrom: scoring.CompatibleDonors(bt),
	})
}
