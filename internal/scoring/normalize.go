package scoring

// NormalizeScores min-max rescales scores onto 0-100, preserving order and
// length. A flat distribution maps every score to 50.
func NormalizeScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	if hi == lo {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo) * 100
	}
	return out
}
