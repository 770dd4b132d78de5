package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/rules"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// ListScreeningRules returns the rules loaded in the screening engine.
// Rules are loaded from the database at startup and refreshed via
// POST /screening-rules/reload.
func (h *Handler) ListScreeningRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.screening.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetScreeningRule returns a loaded rule, falling back to the stored copy
// for disabled or not yet reloaded rules.
func (h *Handler) GetScreeningRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.screening.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	rule, err := h.repo.GetScreeningRule(r.Context(), GlobalTenantID, ruleID)
	if err != nil {
		h.fail(w, r, err, "screening rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateScreeningRule validates a CEL rule and stores it globally. Call
// POST /screening-rules/reload to apply it.
func (h *Handler) CreateScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.ScreeningRule
	if err := decodeBody(r, screeningRuleSchema, &rule); err != nil {
		h.fail(w, r, err, "")
		return
	}
	rule.TenantID = GlobalTenantID
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	if err := h.screening.ValidateRule(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveScreeningRule(ctx, GlobalTenantID, &rule); err != nil {
		h.fail(w, r, err, "screening rule")
		return
	}

	zap.L().Info("screening rule created", zap.String("id", rule.ID), zap.String("action", string(rule.Action)))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /screening-rules/reload to apply changes.",
	})
}

// ReloadScreeningRules reloads all stored rules into the engine.
func (h *Handler) ReloadScreeningRules(w http.ResponseWriter, r *http.Request) {
	stored, err := h.repo.ListScreeningRules(r.Context(), GlobalTenantID)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	if err := h.screening.ReloadRules(stored); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	zap.L().Info("screening rules reloaded", zap.Int("count", h.screening.RulesCount()))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.screening.RulesCount(),
	})
}

// ListProfiles returns the loaded weight profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	loaded := h.profiles.GetLoadedProfiles()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": loaded,
		"count":    len(loaded),
	})
}

// GetProfile returns a stored weight profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProfile(r.Context(), GlobalTenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProfile stores a new weight profile. Call POST /profiles/reload
// to apply it.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	h.saveProfile(w, r, "", http.StatusCreated)
}

// UpdateProfile replaces a stored weight profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.repo.GetProfile(r.Context(), GlobalTenantID, id); err != nil {
		h.fail(w, r, err, "profile")
		return
	}
	h.saveProfile(w, r, id, http.StatusOK)
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request, id string, status int) {
	ctx := r.Context()

	var p domain.WeightProfile
	if err := decodeBody(r, profileSchema, &p); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if id != "" {
		p.ID = id
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.TenantID = GlobalTenantID
	if p.Version == "" {
		p.Version = "1.0.0"
	}

	if err := rules.ValidateProfile(&p); err != nil {
		h.fail(w, r, invalidSetting(err), "")
		return
	}

	if err := h.repo.SaveProfile(ctx, GlobalTenantID, &p); err != nil {
		h.fail(w, r, err, "profile")
		return
	}

	zap.L().Info("weight profile saved", zap.String("id", p.ID))
	writeJSON(w, status, map[string]interface{}{
		"profile": p,
		"message": "Profile saved. Call POST /profiles/reload to apply changes.",
	})
}

// DeleteProfile removes a stored weight profile.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteProfile(r.Context(), GlobalTenantID, id); err != nil {
		h.fail(w, r, err, "profile")
		return
	}

	zap.L().Info("weight profile deleted", zap.String("id", id))
	writeJSON(w, http.StatusOK, map[string]string{
		"id":      id,
		"message": "Profile deleted. Call POST /profiles/reload to apply changes.",
	})
}

// ReloadProfiles reloads all stored profiles into the profile engine.
func (h *Handler) ReloadProfiles(w http.ResponseWriter, r *http.Request) {
	stored, err := h.repo.ListProfiles(r.Context(), GlobalTenantID)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	if err := h.profiles.ReloadProfiles(stored); err != nil {
		h.fail(w, r, invalidSetting(err), "")
		return
	}

	zap.L().Info("weight profiles reloaded", zap.Int("count", h.profiles.ProfileCount()))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "profiles reloaded successfully",
		"count":   h.profiles.ProfileCount(),
	})
}

// invalidSetting marks a validation failure as a client error while
// keeping the invalid-weights sentinel visible.
func invalidSetting(err error) error {
	if errors.Is(err, scoring.ErrInvalidWeights) {
		return err
	}
	return fmt.Errorf("%w: %v", errInvalidBody, err)
}
