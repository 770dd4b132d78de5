package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// ErrInvalidWeights is returned when match weights do not sum to a positive
// finite number.
var ErrInvalidWeights = errors.New("invalid match weights")

// ValidateWeights checks that every weight is finite and the sum is positive.
func ValidateWeights(w domain.MatchWeights) error {
	for _, v := range []float64{w.RUS, w.DRS, w.Distance} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite weight in %+v", ErrInvalidWeights, w)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("%w: weight sum %g must be positive", ErrInvalidWeights, w.Sum())
	}
	return nil
}

// MatchScore blends urgency, readiness and distance into a 0-100 score.
// The compatibility gate runs first: incompatible pairs (including unknown
// donor types) score 0 whatever the weights. Compatible pairs with invalid
// weights return ErrInvalidWeights.
//
// The distance penalty is weights.Distance * (100 - closeness) where
// closeness = max(0, 100 - distance); it therefore grows with raw distance
// and saturates at 100.
func MatchScore(rus, drs, distance float64, w domain.MatchWeights, requestType, donorType domain.BloodType) (float64, error) {
	if !CanDonate(donorType, requestType) {
		return 0, nil
	}
	if err := ValidateWeights(w); err != nil {
		return 0, err
	}

	closeness := math.Max(0, 100-distance)
	score := (w.RUS*rus + w.DRS*drs - w.Distance*(100-closeness)) / w.Sum()

	return clamp(score, 0, maxScore), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
