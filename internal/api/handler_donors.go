package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/ranking"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// DonorRequest is the body of POST /donors. Available defaults to true.
type DonorRequest struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	BloodType           domain.BloodType       `json:"bloodType"`
	Location            *domain.GeoPoint       `json:"location,omitempty"`
	DistanceHintKm      *float64               `json:"distanceHintKm,omitempty"`
	LastDonation        *time.Time             `json:"lastDonation,omitempty"`
	DonationCount       int                    `json:"donationCount"`
	SocialEngagement    float64                `json:"socialEngagement"`
	ProfileCompleteness float64                `json:"profileCompleteness"`
	Available           *bool                  `json:"available,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// CreateDonor handles POST /donors. Posting an existing ID updates it.
func (h *Handler) CreateDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req DonorRequest
	if err := decodeBody(r, donorSchema, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	donor := &domain.Donor{
		ID:                  req.ID,
		TenantID:            tenantID,
		Name:                req.Name,
		BloodType:           req.BloodType,
		Location:            req.Location,
		DistanceHintKm:      req.DistanceHintKm,
		LastDonation:        req.LastDonation,
		DonationCount:       req.DonationCount,
		SocialEngagement:    req.SocialEngagement,
		ProfileCompleteness: req.ProfileCompleteness,
		Available:           req.Available == nil || *req.Available,
		Metadata:            req.Metadata,
	}
	if donor.ID == "" {
		donor.ID = uuid.New().String()
	}

	if err := h.repo.SaveDonor(ctx, tenantID, donor); err != nil {
		h.fail(w, r, err, "donor")
		return
	}
	if h.cache != nil {
		_ = h.cache.InvalidateEvaluation(ctx, tenantID, domain.SubjectDonor, donor.ID)
	}

	zap.L().Info("donor saved",
		zap.String("tenant_id", tenantID),
		zap.String("donor_id", donor.ID),
		zap.String("blood_type", string(donor.BloodType)),
	)
	writeJSON(w, http.StatusCreated, donor)
}

// ListDonors handles GET /donors?bloodType=O-,O%2B&available=true&limit=50.
func (h *Handler) ListDonors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var filter domain.DonorFilter
	if raw := q.Get("bloodType"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			bt, err := domain.ParseBloodType(part)
			if err != nil {
				h.fail(w, r, err, "")
				return
			}
			filter.BloodTypes = append(filter.BloodTypes, bt)
		}
	}
	filter.AvailableOnly = q.Get("available") == "true"
	filter.Limit = queryInt(q.Get("limit"))

	donors, err := h.repo.ListDonors(ctx, GetTenantID(ctx), filter)
	if err != nil {
		h.fail(w, r, err, "donors")
		return
	}
	if donors == nil {
		donors = []*domain.Donor{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"donors": donors,
		"count":  len(donors),
	})
}

// DonorResponse is a donor with its ledger summary and current readiness.
type DonorResponse struct {
	*domain.Donor
	History   *domain.DonorSummary       `json:"history,omitempty"`
	Readiness float64                    `json:"readiness"`
	Breakdown scoring.ReadinessBreakdown `json:"readinessBreakdown"`
}

// GetDonor handles GET /donors/{id}.
func (h *Handler) GetDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	donor, err := h.repo.GetDonor(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "donor")
		return
	}

	resp := DonorResponse{Donor: donor}
	if h.history != nil {
		summary, err := h.history.Summary(ctx, tenantID, donor.ID)
		if err != nil {
			h.fail(w, r, err, "donor")
			return
		}
		resp.History = summary
		if err := h.history.Enrich(ctx, tenantID, []*domain.Donor{donor}); err != nil {
			h.fail(w, r, err, "donor")
			return
		}
	}

	in := donor.ReadinessInput(donor.DistanceHintKm)
	resp.Readiness = h.scorer.DRS(in)
	resp.Breakdown = scoring.ReadinessComponents(in, h.scorer.Now())

	writeJSON(w, http.StatusOK, resp)
}

// RecordDonation handles POST /donors/{id}/donations.
func (h *Handler) RecordDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var donation domain.Donation
	if err := decodeBody(r, donationSchema, &donation); err != nil {
		h.fail(w, r, err, "")
		return
	}
	donation.DonorID = chi.URLParam(r, "id")

	donor, err := h.history.Record(ctx, tenantID, &donation)
	if err != nil {
		h.fail(w, r, err, "donor")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"donation": donation,
		"donor":    donor,
	})
}

// MatchingRequests handles GET /donors/{id}/requests: the open requests the
// donor can give to, ranked. Accepts ?profileId= and ?limit=.
func (h *Handler) MatchingRequests(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	donor, err := h.repo.GetDonor(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "donor")
		return
	}
	if h.history != nil {
		if err := h.history.Enrich(ctx, tenantID, []*domain.Donor{donor}); err != nil {
			h.fail(w, r, err, "donor")
			return
		}
	}

	requests, err := h.repo.ListRequests(ctx, tenantID, domain.RequestFilter{
		BloodTypes: scoring.CompatibleRecipients(donor.BloodType),
		Status:     domain.RequestOpen,
	})
	if err != nil {
		h.fail(w, r, err, "requests")
		return
	}

	limit := queryInt(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = h.scoring.TopN
	}

	eval, err := h.ranker.RankRequests(ctx, &ranking.RequestRankInput{
		TenantID:  tenantID,
		TraceID:   GetTraceID(ctx),
		Donor:     donor,
		Requests:  requests,
		ProfileID: r.URL.Query().Get("profileId"),
		Limit:     limit,
		StartTime: start,
	})
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	if err := h.repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if h.cache != nil {
		_ = h.cache.SetEvaluation(ctx, tenantID, eval, h.scoring.EvaluationTTL)
	}

	writeJSON(w, http.StatusOK, eval)
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
