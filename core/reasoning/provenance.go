package reasoning

import "math"

// geomean returns the geometric mean of scores, or 0 for an empty slice
// rather than 1 (the conventional empty-product identity) so that an
// entirely empty response reports zero confidence.
func geomean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	logSum := 0.0
	for _, s := range scores {
		if s <= 0 {
			return 0
		}
		logSum += math.Log(s)
	}
	return math.Exp(logSum / float64(len(scores)))
}
