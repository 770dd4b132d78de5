// Package ranking scores candidate donor/request pairs in parallel and
// produces ranked match evaluations.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/geo"
	"github.com/lifelink-community/lifelink/internal/metrics"
	"github.com/lifelink-community/lifelink/internal/rules"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// EngineVersion is stamped on every evaluation.
const EngineVersion = "lifelink-1.0"

// ErrUnknownProfile is returned when a requested weight profile is not loaded.
var ErrUnknownProfile = errors.New("unknown weight profile")

// ErrNilCandidate is returned when a donor or request list holds a nil entry.
var ErrNilCandidate = errors.New("nil entry in candidate list")

// unknownDistanceKm is the distance assumed by the match score when the
// pair distance cannot be resolved.
const unknownDistanceKm = 100.0

var tracer = otel.Tracer("lifelink-ranking")

// Ranker scores pairs and assembles ranked evaluations.
type Ranker struct {
	scorer     *scoring.Scorer
	screening  *rules.Engine
	profiles   *rules.ProfileEngine
	maxWorkers int

	// DefaultWeights apply when neither the caller nor a profile supplies any.
	DefaultWeights domain.MatchWeights
}

// NewRanker creates a ranker. screening and profiles may be nil.
func NewRanker(scorer *scoring.Scorer, screening *rules.Engine, profiles *rules.ProfileEngine, maxWorkers int) *Ranker {
	if scorer == nil {
		scorer = scoring.NewScorer(nil)
	}
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Ranker{
		scorer:         scorer,
		screening:      screening,
		profiles:       profiles,
		maxWorkers:     maxWorkers,
		DefaultWeights: domain.DefaultMatchWeights(),
	}
}

// DonorRankInput ranks donors against one request.
type DonorRankInput struct {
	TenantID  string
	TraceID   string
	Request   *domain.BloodRequest
	Donors    []*domain.Donor
	Weights   *domain.MatchWeights
	ProfileID string
	Limit     int
	StartTime time.Time
}

// RequestRankInput ranks requests for one donor.
type RequestRankInput struct {
	TenantID  string
	TraceID   string
	Donor     *domain.Donor
	Requests  []*domain.BloodRequest
	Weights   *domain.MatchWeights
	ProfileID string
	Limit     int
	StartTime time.Time
}

// Resolved is the effective weighting for a ranking.
type Resolved struct {
	Weights   domain.MatchWeights
	ProfileID string
	MinScore  float64
}

// ResolveWeights picks explicit weights over a profile over the defaults.
func (r *Ranker) ResolveWeights(explicit *domain.MatchWeights, profileID string) (Resolved, error) {
	var res Resolved

	switch {
	case explicit != nil:
		res.Weights = *explicit
	case profileID != "":
		if r.profiles == nil {
			return res, fmt.Errorf("%w: %s", ErrUnknownProfile, profileID)
		}
		p, ok := r.profiles.Resolve(profileID)
		if !ok {
			return res, fmt.Errorf("%w: %s", ErrUnknownProfile, profileID)
		}
		res.Weights, res.ProfileID, res.MinScore = p.Weights, p.ID, p.MinScore
	default:
		res.Weights = r.DefaultWeights
	}

	if err := scoring.ValidateWeights(res.Weights); err != nil {
		return res, err
	}
	return res, nil
}

// pairRef is one unit of parallel work.
type pairRef struct {
	donor *domain.Donor
	req   *domain.BloodRequest
	rus   float64
}

type pairResult struct {
	candidate *domain.MatchCandidate
	excluded  *domain.ExclusionResult
	outcome   string
	err       error
}

type rankStats struct {
	incompatible int
	belowMin     int
	rules        int
}

// RankDonors scores every donor against the request.
func (r *Ranker) RankDonors(ctx context.Context, in *DonorRankInput) (*domain.MatchEvaluation, error) {
	if in.Request == nil {
		return nil, fmt.Errorf("request is required")
	}
	rus := r.scorer.RUS(in.Request.UrgencyInput())

	pairs := make([]pairRef, len(in.Donors))
	for i, d := range in.Donors {
		if d == nil {
			return nil, fmt.Errorf("%w: donor %d", ErrNilCandidate, i)
		}
		pairs[i] = pairRef{donor: d, req: in.Request, rus: rus}
	}

	return r.rank(ctx, domain.SubjectRequest, in.Request.ID, in.TenantID, in.TraceID,
		pairs, in.Weights, in.ProfileID, in.Limit, in.StartTime)
}

// RankRequests scores every request against the donor.
func (r *Ranker) RankRequests(ctx context.Context, in *RequestRankInput) (*domain.MatchEvaluation, error) {
	if in.Donor == nil {
		return nil, fmt.Errorf("donor is required")
	}

	pairs := make([]pairRef, len(in.Requests))
	for i, req := range in.Requests {
		if req == nil {
			return nil, fmt.Errorf("%w: request %d", ErrNilCandidate, i)
		}
		pairs[i] = pairRef{donor: in.Donor, req: req, rus: r.scorer.RUS(req.UrgencyInput())}
	}

	return r.rank(ctx, domain.SubjectDonor, in.Donor.ID, in.TenantID, in.TraceID,
		pairs, in.Weights, in.ProfileID, in.Limit, in.StartTime)
}

func (r *Ranker) rank(ctx context.Context, subject, subjectID, tenantID, traceID string,
	pairs []pairRef, explicit *domain.MatchWeights, profileID string, limit int, startTime time.Time) (*domain.MatchEvaluation, error) {

	if startTime.IsZero() {
		startTime = time.Now()
	}
	timer := time.Now()

	ctx, span := tracer.Start(ctx, "rank."+subject, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("subject.id", subjectID),
		attribute.Int("pairs", len(pairs)),
	))
	defer span.End()

	resolved, err := r.ResolveWeights(explicit, profileID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RankingsTotal.WithLabelValues(subject, "rejected").Inc()
		return nil, err
	}

	now := r.scorer.Now()
	results := make([]pairResult, len(pairs))

	// Parallel scoring using worker pool pattern
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxWorkers)

	for i := range pairs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = r.scorePair(ctx, pairs[idx], resolved, now)
		}(i)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		metrics.RankingsTotal.WithLabelValues(subject, "cancelled").Inc()
		return nil, err
	}

	eval := &domain.MatchEvaluation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Subject:   subject,
		SubjectID: subjectID,
		ProfileID: resolved.ProfileID,
		Weights:   resolved.Weights,
		Timestamp: time.Now().UTC(),
	}

	var stats rankStats
	candidates := make([]domain.MatchCandidate, 0, len(results))
	for _, res := range results {
		if res.err != nil {
			span.RecordError(res.err)
			return nil, res.err
		}
		metrics.PairsScored.WithLabelValues(res.outcome).Inc()

		switch res.outcome {
		case metrics.PairExcluded:
			eval.Excluded = append(eval.Excluded, *res.excluded)
		case metrics.PairIncompatible:
			stats.incompatible++
		case metrics.PairBelowMin:
			stats.belowMin++
		default:
			candidates = append(candidates, *res.candidate)
		}
	}
	if r.screening != nil {
		stats.rules = r.screening.RulesCount()
	}

	SortCandidates(candidates)

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score
	}
	for i, n := range scoring.NormalizeScores(scores) {
		candidates[i].NormalizedScore = n
	}

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	eval.Candidates = candidates

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:           traceID,
		ScoringMs:         time.Since(timer).Milliseconds(),
		TotalMs:           time.Since(startTime).Milliseconds(),
		PairsEvaluated:    len(pairs),
		PairsIncompatible: stats.incompatible,
		PairsBelowMin:     stats.belowMin,
		RulesEvaluated:    stats.rules,
		EngineVersion:     EngineVersion,
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	metrics.RankingsTotal.WithLabelValues(subject, "ok").Inc()
	metrics.RankingDuration.WithLabelValues(subject).Observe(time.Since(timer).Seconds())

	return eval, nil
}

// scorePair screens and scores a single pair.
func (r *Ranker) scorePair(ctx context.Context, p pairRef, res Resolved, now time.Time) pairResult {
	compatible := scoring.CanDonate(p.donor.BloodType, p.req.BloodType)
	distance := geo.PairDistance(p.donor, p.req)

	var flags []string
	if r.screening != nil {
		outcome := r.screening.Screen(ctx, &rules.ScreenInput{
			Donor:      p.donor,
			Request:    p.req,
			DistanceKm: distance,
			Compatible: compatible,
			Now:        now,
		})
		if outcome.Excluded {
			return pairResult{
				outcome: metrics.PairExcluded,
				excluded: &domain.ExclusionResult{
					DonorID:   p.donor.ID,
					RequestID: p.req.ID,
					RuleID:    outcome.ExcludedBy,
					Reason:    outcome.Reason,
				},
			}
		}
		flags = outcome.Flags
	}

	drs := scoring.DonorReadiness(p.donor.ReadinessInput(distance), now)

	d := unknownDistanceKm
	if distance != nil {
		d = *distance
	}

	score, err := scoring.MatchScore(p.rus, drs, d, res.Weights, p.req.BloodType, p.donor.BloodType)
	if err != nil {
		return pairResult{err: err}
	}

	if !compatible {
		return pairResult{outcome: metrics.PairIncompatible}
	}
	if score < res.MinScore {
		return pairResult{outcome: metrics.PairBelowMin}
	}

	return pairResult{
		outcome: metrics.PairScored,
		candidate: &domain.MatchCandidate{
			DonorID:          p.donor.ID,
			RequestID:        p.req.ID,
			DonorBloodType:   p.donor.BloodType,
			RequestBloodType: p.req.BloodType,
			Compatible:       compatible,
			RUS:              p.rus,
			DRS:              drs,
			DistanceKm:       d,
			DistanceKnown:    distance != nil,
			Score:            score,
			Flags:            flags,
		},
	}
}

// SortCandidates orders by score, then readiness, then urgency, then IDs,
// so that equal scores rank deterministically.
func SortCandidates(c []domain.MatchCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		switch {
		case a.Score != b.Score:
			return a.Score > b.Score
		case a.DRS != b.DRS:
			return a.DRS > b.DRS
		case a.RUS != b.RUS:
			return a.RUS > b.RUS
		case a.DonorID != b.DonorID:
			return a.DonorID < b.DonorID
		default:
			return a.RequestID < b.RequestID
		}
	})
}

// ShouldAlert reports whether a candidate warrants a donor alert: the
// request must be Urgent and the score at least threshold.
func ShouldAlert(req *domain.BloodRequest, c domain.MatchCandidate, threshold float64) bool {
	return req.Urgency == domain.UrgencyUrgent && c.Score >= threshold
}

// AlertCandidates returns the candidates of a request ranking that warrant
// donor alerts, in rank order.
func AlertCandidates(req *domain.BloodRequest, eval *domain.MatchEvaluation, threshold float64) []domain.MatchCandidate {
	var out []domain.MatchCandidate
	for _, c := range eval.Candidates {
		if ShouldAlert(req, c, threshold) {
			out = append(out, c)
		}
	}
	return out
}

// Reasons collects the distinct flags raised across a ranking.
func Reasons(eval *domain.MatchEvaluation) []string {
	seen := make(map[string]struct{})
	var reasons []string
	for _, c := range eval.Candidates {
		for _, f := range c.Flags {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			reasons = append(reasons, f)
		}
	}
	return reasons
}
