// Package rank scores and orders open queues for discovery. Scoring is a
// weighted sum of text match, proximity, predicted quality and user
// preference; the sort is stable so equal scores keep service-name order.
package rank

import "sort"

// Weights of the composite score.
const (
	textMatchWeight   = 0.4
	distanceWeight    = 0.3
	qualityWeight     = 0.2
	institutionWeight = 0.2
	categoryWeight    = 0.2
)

// Score computes the composite ranking score for one candidate.
func Score(textMatch bool, distanceKM *float64, quality float64, prefInstitution, prefCategory bool) float64 {
	score := 0.0
	if textMatch {
		score += textMatchWeight
	}
	if distanceKM != nil {
		score += (1 / (*distanceKM + 1)) * distanceWeight
	}
	score += quality * qualityWeight
	if prefInstitution {
		score += institutionWeight
	}
	if prefCategory {
		score += categoryWeight
	}
	return score
}

// SpeedLabel classifies a queue by its mean service duration in minutes.
func SpeedLabel(meanServiceMinutes float64, known bool) string {
	switch {
	case !known:
		return "unknown"
	case meanServiceMinutes <= 5:
		return "fast"
	case meanServiceMinutes <= 15:
		return "moderate"
	default:
		return "slow"
	}
}

// sortResults orders results by score descending, preserving input order for
// ties.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
