// Package predict holds the wait-time and service-quality prediction
// capabilities. The trained models live outside this repo; what ships here
// are deterministic implementations suitable as permanent fallbacks.
package predict

import (
	"math"
	"sync"
)

// WaitPredictor estimates the wait in minutes for a ticket at the given
// position. Returning ok=false means no model estimate is available and the
// caller should fall back to its deterministic formula.
type WaitPredictor interface {
	Predict(queueID string, position, activeCount, priority, hourOfDay int) (float64, bool)
}

// QualityScorer scores a queue's predicted service quality in [0,1].
type QualityScorer interface {
	Score(queueID string, avgServiceMinutes float64, activeCount, dailyLimit int) float64
}

// NoModel is a WaitPredictor with no model loaded; every call defers to the
// caller's fallback.
type NoModel struct{}

func (NoModel) Predict(string, int, int, int, int) (float64, bool) {
	return 0, false
}

// TablePredictor serves per-queue mean service times recorded by an external
// trainer. Lookups multiply the stored mean by the position, matching the
// feature the model was trained on.
type TablePredictor struct {
	mu    sync.RWMutex
	means map[string]float64
}

// NewTablePredictor creates an empty predictor; Update loads rows into it.
func NewTablePredictor() *TablePredictor {
	return &TablePredictor{means: make(map[string]float64)}
}

// Update replaces the mean for a queue. Safe for concurrent use with Predict.
func (p *TablePredictor) Update(queueID string, meanMinutes float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.means[queueID] = meanMinutes
}

func (p *TablePredictor) Predict(queueID string, position, _, _, _ int) (float64, bool) {
	p.mu.RLock()
	mean, ok := p.means[queueID]
	p.mu.RUnlock()
	if !ok || mean <= 0 {
		return 0, false
	}
	return math.Round(mean*float64(position)*10) / 10, true
}

// HeuristicScorer derives a quality score from the queue's own statistics:
// faster service and lighter load score higher.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(_ string, avgServiceMinutes float64, activeCount, dailyLimit int) float64 {
	score := 0.5
	if avgServiceMinutes > 0 {
		// 5 minutes or less is full marks, 30 or more is zero.
		score = 1 - (avgServiceMinutes-5)/25
	}
	if dailyLimit > 0 {
		load := float64(activeCount) / float64(dailyLimit)
		score -= load * 0.3
	}
	return math.Max(0, math.Min(1, score))
}
