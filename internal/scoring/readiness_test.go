package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lifelink-community/lifelink/internal/domain"
)

func float(v float64) *float64 { return &v }

func daysAgo(d float64) *time.Time {
	t := refNow.Add(-time.Duration(d * 24 * float64(time.Hour)))
	return &t
}

// exampleDonor is eligible, 20 km away, O+, with three donations.
func exampleDonor() domain.DonorReadinessInput {
	return domain.DonorReadinessInput{
		DonationCount:       3,
		Distance:            float(20),
		SocialEngagement:    2,
		ProfileCompleteness: 80,
		BloodType:           domain.BloodOPlus,
	}
}

func TestDonorReadiness(t *testing.T) {
	t.Run("WorkedExample", func(t *testing.T) {
		in := exampleDonor()
		b := ReadinessComponents(in, refNow)
		assert.Equal(t, ReadinessBreakdown{
			Eligibility: 10, Experience: 3, Distance: 8, Engagement: 2, Completeness: 8, Universality: 8,
		}, b)
		assert.InDelta(t, 49.2/7, b.Weighted(), 1e-9)
		assert.Equal(t, 70.0, DonorReadiness(in, refNow))
	})

	t.Run("Defaults", func(t *testing.T) {
		// eligibility 10, distance 100 -> 0, universality 10: (15 + 10) / 7 -> 35.7
		in := domain.DonorReadinessInput{BloodType: domain.BloodOMinus}
		b := ReadinessComponents(in, refNow)
		assert.Equal(t, 0.0, b.Distance)
		assert.Equal(t, 36.0, DonorReadiness(in, refNow))
	})

	t.Run("DeferralWindow", func(t *testing.T) {
		recent := exampleDonor()
		recent.LastDonation = daysAgo(30)
		assert.Equal(t, 0.0, ReadinessComponents(recent, refNow).Eligibility)

		boundary := exampleDonor()
		boundary.LastDonation = daysAgo(55.9)
		assert.Equal(t, 0.0, ReadinessComponents(boundary, refNow).Eligibility)

		eligible := exampleDonor()
		eligible.LastDonation = daysAgo(57)
		assert.InDelta(t, 5+57.0/30, ReadinessComponents(eligible, refNow).Eligibility, 1e-9)

		assert.Less(t, DonorReadiness(recent, refNow), DonorReadiness(eligible, refNow))
		assert.Equal(t, 49.0, DonorReadiness(recent, refNow))
		assert.Equal(t, 64.0, DonorReadiness(eligible, refNow))
	})

	t.Run("EligibilityCapped", func(t *testing.T) {
		in := exampleDonor()
		in.LastDonation = daysAgo(365)
		assert.Equal(t, 10.0, ReadinessComponents(in, refNow).Eligibility)
	})

	t.Run("UniversalityOrdering", func(t *testing.T) {
		want := map[domain.BloodType]float64{
			"O-": 10, "O+": 8, "A-": 8, "B-": 8, "A+": 6, "B+": 6, "AB-": 4, "AB+": 2, "??": 2,
		}
		for bt, u := range want {
			in := exampleDonor()
			in.BloodType = bt
			assert.Equal(t, u, ReadinessComponents(in, refNow).Universality, string(bt))
		}

		oNeg, abPos := exampleDonor(), exampleDonor()
		oNeg.BloodType, abPos.BloodType = domain.BloodOMinus, domain.BloodABPlus
		assert.GreaterOrEqual(t, DonorReadiness(oNeg, refNow), DonorReadiness(abPos, refNow))
		assert.Equal(t, 73.0, DonorReadiness(oNeg, refNow))
		assert.Equal(t, 62.0, DonorReadiness(abPos, refNow))
	})

	t.Run("ComponentsClamp", func(t *testing.T) {
		in := domain.DonorReadinessInput{
			DonationCount:       40,
			Distance:            float(0),
			SocialEngagement:    75,
			ProfileCompleteness: 100,
			BloodType:           domain.BloodOMinus,
		}
		assert.Equal(t, 100.0, DonorReadiness(in, refNow))

		far := exampleDonor()
		far.Distance = float(450)
		assert.Equal(t, 0.0, ReadinessComponents(far, refNow).Distance)
	})
}
