package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lifelink-community/lifelink/internal/domain"
)

func TestScorer(t *testing.T) {
	t.Run("FixedClock", func(t *testing.T) {
		s := NewScorer(FixedClock(refNow))
		assert.Equal(t, refNow, s.Now())

		rus := s.RUS(domain.RequestUrgencyInput{
			Urgency: domain.UrgencyUrgent, CreatedAt: refNow, BloodType: domain.BloodOMinus,
		})
		assert.Equal(t, 60.0, rus)
		assert.Equal(t, 70.0, s.DRS(exampleDonor()))
	})

	t.Run("ClockIsReadPerCall", func(t *testing.T) {
		now := refNow
		s := NewScorer(ClockFunc(func() time.Time { return now }))
		in := domain.RequestUrgencyInput{
			Urgency: domain.UrgencyUrgent, CreatedAt: refNow, BloodType: domain.BloodAPlus,
		}
		first := s.RUS(in)
		now = now.Add(12 * time.Hour)
		assert.Greater(t, s.RUS(in), first)
	})

	t.Run("NilClockUsesSystemTime", func(t *testing.T) {
		s := NewScorer(nil)
		assert.WithinDuration(t, time.Now(), s.Now(), time.Second)
	})

	t.Run("Match", func(t *testing.T) {
		s := NewScorer(FixedClock(refNow))
		_, err := s.Match(1, 1, 1, domain.MatchWeights{}, domain.BloodAPlus, domain.BloodAPlus)
		assert.ErrorIs(t, err, ErrInvalidWeights)
	})
}
