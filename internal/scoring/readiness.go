package scoring

import (
	"math"
	"time"

	"github.com/lifelink-community/lifelink/internal/domain"
)

const (
	// minDonationIntervalDays is the whole-blood deferral period.
	minDonationIntervalDays = 56

	// defaultDistanceKm is assumed when a donor's distance is unknown.
	defaultDistanceKm = 100

	readinessScale = 10
)

// Component weights; they sum to 7.
const (
	weightEligibility  = 1.5
	weightExperience   = 1.0
	weightDistance     = 2.0
	weightEngagement   = 0.8
	weightCompleteness = 0.7
	weightUniversality = 1.0
	readinessWeightSum = 7
)

// ReadinessBreakdown holds the six readiness components, each on 0-10.
type ReadinessBreakdown struct {
	Eligibility  float64 `json:"eligibility"`
	Experience   float64 `json:"experience"`
	Distance     float64 `json:"distance"`
	Engagement   float64 `json:"engagement"`
	Completeness float64 `json:"completeness"`
	Universality float64 `json:"universality"`
}

// Weighted returns the weighted average of the components.
func (b ReadinessBreakdown) Weighted() float64 {
	return (b.Eligibility*weightEligibility +
		b.Experience*weightExperience +
		b.Distance*weightDistance +
		b.Engagement*weightEngagement +
		b.Completeness*weightCompleteness +
		b.Universality*weightUniversality) / readinessWeightSum
}

// ReadinessComponents scores each readiness factor for in at time now.
func ReadinessComponents(in domain.DonorReadinessInput, now time.Time) ReadinessBreakdown {
	distance := float64(defaultDistanceKm)
	if in.Distance != nil {
		distance = *in.Distance
	}

	return ReadinessBreakdown{
		Eligibility:  eligibility(in.LastDonation, now),
		Experience:   math.Min(10, float64(in.DonationCount)),
		Distance:     math.Max(0, 10-distance/10),
		Engagement:   math.Min(10, in.SocialEngagement),
		Completeness: in.ProfileCompleteness / 10,
		Universality: universality(in.BloodType),
	}
}

// DonorReadiness computes the donor readiness score (DRS) at time now.
func DonorReadiness(in domain.DonorReadinessInput, now time.Time) float64 {
	return math.Min(maxScore, round(ReadinessComponents(in, now).Weighted()*readinessScale))
}

// eligibility is 10 for donors with no recorded donation, 0 inside the
// deferral window, then recovers from 5 toward 10 at one point per 30 days.
func eligibility(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 10
	}
	days := now.Sub(*last).Hours() / 24
	if days < minDonationIntervalDays {
		return 0
	}
	return math.Min(10, 5+days/30)
}

func universality(b domain.BloodType) float64 {
	switch b {
	case domain.BloodOMinus:
		return 10
	case domain.BloodOPlus, domain.BloodAMinus, domain.BloodBMinus:
		return 8
	case domain.BloodAPlus, domain.BloodBPlus:
		return 6
	case domain.BloodABMinus:
		return 4
	default:
		return 2
	}
}
