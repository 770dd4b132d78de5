package domain

import (
	"time"
)

// RequestUrgencyInput carries the request fields used by the urgency score.
type RequestUrgencyInput struct {
	Urgency   Urgency   `json:"urgency"`
	CreatedAt time.Time `json:"createdAt"`
	Tags      []string  `json:"tags,omitempty"`
	BloodType BloodType `json:"bloodType"`
}

// DonorReadinessInput carries the donor fields used by the readiness score.
// Nil pointers mean "unknown" and take the scoring defaults.
type DonorReadinessInput struct {
	LastDonation        *time.Time `json:"lastDonation,omitempty"`
	DonationCount       int        `json:"donationCount"`
	Distance            *float64   `json:"distance,omitempty"` // km
	SocialEngagement    float64    `json:"socialEngagement"`
	ProfileCompleteness float64    `json:"profileCompleteness"`
	BloodType           BloodType  `json:"bloodType"`
}

// MatchWeights tunes the blend of urgency, readiness and distance in the
// matching score.
type MatchWeights struct {
	RUS      float64 `json:"rus" mapstructure:"rus"`
	DRS      float64 `json:"drs" mapstructure:"drs"`
	Distance float64 `json:"distance" mapstructure:"distance"`
}

// Sum returns the total weight.
func (w MatchWeights) Sum() float64 {
	return w.RUS + w.DRS + w.Distance
}

// DefaultMatchWeights returns the stock 0.4/0.4/0.2 blend.
func DefaultMatchWeights() MatchWeights {
	return MatchWeights{RUS: 0.4, DRS: 0.4, Distance: 0.2}
}

// MatchCandidate is one scored donor/request pair.
type MatchCandidate struct {
	DonorID          string    `json:"donorId"`
	RequestID        string    `json:"requestId"`
	DonorBloodType   BloodType `json:"donorBloodType"`
	RequestBloodType BloodType `json:"requestBloodType"`
	Compatible       bool      `json:"compatible"`
	RUS              float64   `json:"rus"`
	DRS              float64   `json:"drs"`
	DistanceKm       float64   `json:"distanceKm"`
	DistanceKnown    bool      `json:"distanceKnown"`
	Score            float64   `json:"score"`
	NormalizedScore  float64   `json:"normalizedScore"`
	Flags            []string  `json:"flags,omitempty"`
}

// ExclusionResult records why a pair was dropped by a screening rule.
type ExclusionResult struct {
	DonorID   string `json:"donorId"`
	RequestID string `json:"requestId"`
	RuleID    string `json:"ruleId"`
	Reason    string `json:"reason"`
}

// Evaluation subjects.
const (
	SubjectRequest = "request"
	SubjectDonor   = "donor"
)

// MatchEvaluation is the persisted result of ranking candidates for one
// request (or one donor).
type MatchEvaluation struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	Subject   string       `json:"subject"`
	SubjectID string       `json:"subjectId"`
	ProfileID string       `json:"profileId,omitempty"`
	Weights   MatchWeights `json:"weights"`
	Timestamp time.Time    `json:"timestamp"`

	Candidates []MatchCandidate  `json:"candidates"`
	Excluded   []ExclusionResult `json:"excluded,omitempty"`

	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID           string `json:"traceId,omitempty"`
	ScoringMs         int64  `json:"scoringMs"`
	TotalMs           int64  `json:"totalMs"`
	PairsEvaluated    int    `json:"pairsEvaluated"`
	PairsIncompatible int    `json:"pairsIncompatible"`
	PairsBelowMin     int    `json:"pairsBelowMin"`
	RulesEvaluated    int    `json:"rulesEvaluated"`
	EngineVersion     string `json:"engineVersion"`
}

// Top returns the highest ranked candidate, or nil when there is none.
func (e *MatchEvaluation) Top() *MatchCandidate {
	if len(e.Candidates) == 0 {
		return nil
	}
	return &e.Candidates[0]
}
