package scoring

import (
	"time"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// Clock supplies the current time to time-dependent scores.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now implements Clock.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Scorer binds the scoring functions to a Clock.
// The zero value is not usable; construct with NewScorer.
type Scorer struct {
	clock Clock
}

// NewScorer returns a Scorer reading time from clock.
// A nil clock means the system clock.
func NewScorer(clock Clock) *Scorer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scorer{clock: clock}
}

// Now returns the scorer's current time.
func (s *Scorer) Now() time.Time {
	return s.clock.Now()
}

// RUS scores request urgency at the clock's current time.
func (s *Scorer) RUS(in domain.RequestUrgencyInput) float64 {
	return RequestUrgency(in, s.clock.Now())
}

// DRS scores donor readiness at the clock's current time.
func (s *Scorer) DRS(in domain.DonorReadinessInput) float64 {
	return DonorReadiness(in, s.clock.Now())
}

// Match scores a pair; see MatchScore.
func (s *Scorer) Match(rus, drs, distance float64, w domain.MatchWeights, requestType, donorType domain.BloodType) (float64, error) {
	return MatchScore(rus, drs, distance, w, requestType, donorType)
}
