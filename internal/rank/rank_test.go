package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	km := 1.0

	testCases := []struct {
		name            string
		textMatch       bool
		distanceKM      *float64
		quality         float64
		prefInstitution bool
		prefCategory    bool
		want            float64
	}{
		{"nothing matches", false, nil, 0, false, false, 0},
		{"text match only", true, nil, 0, false, false, 0.4},
		{"distance of one km", false, &km, 0, false, false, 0.15},
		{"full quality", false, nil, 1, false, false, 0.2},
		{"preferred institution", false, nil, 0, true, false, 0.2},
		{"preferred category", false, nil, 0, false, true, 0.2},
		{"everything", true, &km, 1, true, true, 1.15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.textMatch, tc.distanceKM, tc.quality, tc.prefInstitution, tc.prefCategory)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestScoreDistanceDecays(t *testing.T) {
	near, far := 0.5, 8.0
	assert.Greater(t, Score(false, &near, 0, false, false), Score(false, &far, 0, false, false))
}

func TestSpeedLabel(t *testing.T) {
	assert.Equal(t, "unknown", SpeedLabel(0, false))
	assert.Equal(t, "fast", SpeedLabel(5, true))
	assert.Equal(t, "moderate", SpeedLabel(12, true))
	assert.Equal(t, "slow", SpeedLabel(25, true))
}

func TestSortResultsStable(t *testing.T) {
	results := []Result{
		{QueueID: "a", Score: 0.5},
		{QueueID: "b", Score: 0.9},
		{QueueID: "c", Score: 0.5},
	}
	sortResults(results)

	assert.Equal(t, "b", results[0].QueueID)
	// Equal scores keep their input order.
	assert.Equal(t, "a", results[1].QueueID)
	assert.Equal(t, "c", results[2].QueueID)
}
