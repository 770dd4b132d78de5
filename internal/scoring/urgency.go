package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/lifelink-community/lifelink/internal/domain"
)

// priorityTags boost urgency by tagBoostPerMatch each (case-insensitive).
var priorityTags = map[string]struct{}{
	"emergency": {},
	"surgery":   {},
	"urgent":    {},
	"critical":  {},
	"accident":  {},
}

// rareTypes carry a rarity multiplier on urgency.
var rareTypes = map[domain.BloodType]struct{}{
	domain.BloodABMinus: {},
	domain.BloodBMinus:  {},
	domain.BloodOMinus:  {},
	domain.BloodABPlus:  {},
}

const (
	tagBoostPerMatch = 0.5
	rarityFactor     = 1.2
	urgencyScale     = 5
	maxScore         = 100
)

func urgencyBase(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyUrgent:
		return 10
	case domain.UrgencyHigh:
		return 7
	case domain.UrgencyStandard:
		return 3
	default:
		return 1
	}
}

// urgencyTimeFactor decays Standard requests toward 1 over four days and
// grows everything else toward 10 over 54 hours.
func urgencyTimeFactor(u domain.Urgency, elapsedHours float64) float64 {
	if u == domain.UrgencyStandard {
		return math.Max(1, 5-elapsedHours/24)
	}
	return math.Min(10, 1+elapsedHours/6)
}

func tagBoost(tags []string) float64 {
	var n int
	for _, t := range tags {
		if _, ok := priorityTags[strings.ToLower(t)]; ok {
			n++
		}
	}
	return float64(n) * tagBoostPerMatch
}

// RequestUrgency computes the request urgency score (RUS) at time now.
// A createdAt after now yields a negative elapsed time and is scored as is.
func RequestUrgency(in domain.RequestUrgencyInput, now time.Time) float64 {
	elapsedHours := now.Sub(in.CreatedAt).Hours()

	raw := urgencyBase(in.Urgency)*urgencyTimeFactor(in.Urgency, elapsedHours) + tagBoost(in.Tags)
	if _, rare := rareTypes[in.BloodType]; rare {
		raw *= rarityFactor
	}

	return math.Min(maxScore, round(raw*urgencyScale))
}

// round rounds halves up: 67.5 becomes 68 and -2.5 becomes -2.
func round(x float64) float64 {
	return math.Floor(x + 0.5)
}
