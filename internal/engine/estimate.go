package engine

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/predict"
	"queue-ticketing-backend/internal/store"
)

// servedSampleWindow caps how many recent served tickets feed the fallback
// mean.
const servedSampleWindow = 100

// Estimator produces wait-time estimates. A model-backed predictor is tried
// first; the deterministic fallback multiplies the mean historical service
// duration by the ticket's position, discounts by priority and penalizes
// congestion.
type Estimator struct {
	predictor      predict.WaitPredictor
	defaultMinutes float64
}

// NewEstimator creates an estimator around the injected predictor.
// defaultMinutes is used when a queue has no service history at all.
func NewEstimator(predictor predict.WaitPredictor, defaultMinutes float64) *Estimator {
	return &Estimator{predictor: predictor, defaultMinutes: defaultMinutes}
}

// forTicket estimates the wait for ticket number in q. The returned bool is
// false only when the queue is closed. When the fallback formula runs, the
// fallback mean is written to q.AvgWaitMinutes; persisting that is the
// caller's job so the write shares the caller's transaction.
func (e *Estimator) forTicket(ctx context.Context, st store.Store, q *model.Queue,
	schedules []model.QueueSchedule, number, priority int, now time.Time) (float64, bool, error) {

	if !IsOpen(schedules, now) {
		return 0, false, nil
	}

	// Service not started yet counts as position relative to the first call.
	current := q.CurrentTicket
	if current == 0 {
		current = 1
	}
	position := number - current
	if position < 0 {
		position = 0
	}
	if position == 0 {
		return 0, true, nil
	}

	if minutes, ok := e.predictor.Predict(q.ID, position, q.ActiveTickets, priority, now.Hour()); ok {
		return round1(minutes), true, nil
	}

	mean := e.defaultMinutes
	durations, err := st.ServedDurations(ctx, q.ID, servedSampleWindow)
	if err != nil {
		return 0, false, err
	}
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		mean = sum / float64(len(durations))
	} else if q.AvgWaitMinutes != nil && *q.AvgWaitMinutes > 0 {
		mean = *q.AvgWaitMinutes
	}

	wait := float64(position) * mean
	if priority > 0 {
		// Unclamped: priorities of 10 or more invert the estimate. Kept as
		// shipped until product says otherwise.
		wait *= 1 - 0.1*float64(priority)
	}
	if q.ActiveTickets > 10 {
		wait += 0.5 * float64(q.ActiveTickets-10)
	}

	q.AvgWaitMinutes = &mean
	return round1(wait), true, nil
}

// Estimate is the read-only entry point: it loads the queue, computes the
// estimate and persists any refreshed rolling average on a best-effort basis.
func (e *Engine) Estimate(ctx context.Context, queueID string, number, priority int) (float64, bool, error) {
	q, err := e.store.QueueByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	schedules, err := e.store.SchedulesFor(ctx, queueID)
	if err != nil {
		return 0, false, err
	}

	before := q.AvgWaitMinutes
	minutes, known, err := e.estimator.forTicket(ctx, e.store, q, schedules, number, priority, e.now())
	if err != nil {
		return 0, false, err
	}
	if known && q.AvgWaitMinutes != nil && changed(before, q.AvgWaitMinutes) {
		// The queue snapshot above is unsynchronized; only the rolling
		// average may be written back, never the full row.
		if err := e.store.UpdateQueueAvgWait(ctx, q.ID, *q.AvgWaitMinutes); err != nil {
			log.Printf("estimate: could not persist rolling average for queue %s: %v", q.ID, err)
		}
	}
	return minutes, known, nil
}

func changed(a, b *float64) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil || b == nil:
		return true
	default:
		return *a != *b
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
