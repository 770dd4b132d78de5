package domain

import "time"

// WeightProfile is a named, tenant-configurable set of match weights.
// Example: an "emergency" profile may weigh urgency at 0.6 and readiness at 0.3.
type WeightProfile struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	Weights MatchWeights `json:"weights"`

	// MinScore drops candidates scoring below it (0-100).
	MinScore float64 `json:"minScore"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Predefined profile IDs.
const (
	ProfileDefault   = "profile-default"
	ProfileEmergency = "profile-emergency"
	ProfileNearby    = "profile-nearby"
)
