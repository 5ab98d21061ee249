package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"queue-ticketing-backend/internal/cache"
	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/predict"
	"queue-ticketing-backend/internal/store"
)

// seedServed inserts served tickets with the given service durations so the
// fallback mean has history to draw on.
func seedServed(t *testing.T, gdb *gorm.DB, queueID string, minutes ...float64) {
	t.Helper()
	for i, m := range minutes {
		m := m
		servedAt := testNow.Add(time.Duration(-i-1) * time.Hour)
		require.NoError(t, gdb.Create(&model.Ticket{
			ID: uuid.NewString(), QueueID: queueID, UserID: "past",
			Number: i + 1, QRCode: "QR-past-" + uuid.NewString()[:8],
			Status: model.StatusServed, IssuedAt: servedAt.Add(-time.Hour),
			ServedAt: &servedAt, ServiceMinutes: &m,
		}).Error)
	}
}

func TestEstimateZeroForHeadOfQueue(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)

	minutes, known, err := eng.Estimate(context.Background(), q.ID, 1, 0)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 0.0, minutes)
}

func TestEstimateAppliesPriorityDiscount(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)
	seedServed(t, gdb, q.ID, 10, 10, 10)

	// Position 3 at 10 min mean with priority 2: 3*10*0.8 = 24.
	minutes, known, err := eng.Estimate(context.Background(), q.ID, 4, 2)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 24.0, minutes)
}

func TestEstimateAddsCongestionPenalty(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 50, 1)
	seedServed(t, gdb, q.ID, 10)
	require.NoError(t, gdb.Model(&model.Queue{}).Where("id = ?", q.ID).
		Update("active_tickets", 14).Error)

	// 2*10 + 0.5*(14-10) = 22.
	minutes, known, err := eng.Estimate(context.Background(), q.ID, 3, 0)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 22.0, minutes)
}

func TestEstimateFallsBackToDefaultMean(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{DefaultServiceMinutes: 7})
	q := seedQueue(t, gdb, "passport", 10, 1)

	// No history at all: position * default.
	minutes, known, err := eng.Estimate(context.Background(), q.ID, 3, 0)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 14.0, minutes)
}

func TestEstimateUnknownWhenClosed(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)
	require.NoError(t, gdb.Model(&model.QueueSchedule{}).
		Where("queue_id = ?", q.ID).Update("closed", true).Error)

	_, known, err := eng.Estimate(context.Background(), q.ID, 3, 0)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestEstimatePrefersPredictor(t *testing.T) {
	gdb := newTestDB(t)
	st := store.NewGormStore(gdb)
	predictor := predict.NewTablePredictor()
	eng := New(st, predictor, fixedDistance{ok: false}, &eventRecorder{},
		cache.NewMemory(), Config{}, func() time.Time { return testNow })
	q := seedQueue(t, gdb, "passport", 10, 1)
	seedServed(t, gdb, q.ID, 10, 10)

	predictor.Update(q.ID, 3.5)

	// The model answer wins over the fallback formula.
	minutes, known, err := eng.Estimate(context.Background(), q.ID, 3, 0)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 7.0, minutes)
}

func TestEstimatePersistsRollingAverage(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)
	seedServed(t, gdb, q.ID, 12, 8)

	_, _, err := eng.Estimate(context.Background(), q.ID, 3, 0)
	require.NoError(t, err)

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	require.NotNil(t, fresh.AvgWaitMinutes)
	assert.InDelta(t, 10.0, *fresh.AvgWaitMinutes, 0.01)
}

// hookedStore fires a one-shot callback when the fallback formula reads the
// service history, after the estimate's queue snapshot was taken.
type hookedStore struct {
	store.Store
	mu          sync.Mutex
	onDurations func()
}

func (s *hookedStore) ServedDurations(ctx context.Context, queueID string, limit int) ([]float64, error) {
	s.mu.Lock()
	hook := s.onDurations
	s.onDurations = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.Store.ServedDurations(ctx, queueID, limit)
}

func TestEstimateKeepsInterleavedIssueCommitted(t *testing.T) {
	gdb := newTestDB(t)
	hs := &hookedStore{Store: store.NewGormStore(gdb)}
	eng := New(hs, predict.NoModel{}, fixedDistance{ok: false}, &eventRecorder{},
		cache.NewMemory(), Config{}, func() time.Time { return testNow })
	q := seedQueue(t, gdb, "passport", 10, 1)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	// A second issuance commits between the estimate's queue read and its
	// rolling-average write.
	hs.mu.Lock()
	hs.onDurations = func() {
		_, err := eng.Issue(context.Background(), "passport", "", "bob", 0, false)
		assert.NoError(t, err)
	}
	hs.mu.Unlock()

	_, known, err := eng.Estimate(context.Background(), q.ID, 5, 0)
	require.NoError(t, err)
	assert.True(t, known)

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	assert.Equal(t, 2, fresh.ActiveTickets)
	require.NotNil(t, fresh.AvgWaitMinutes)

	// The next issuance must not reuse bob's number.
	third, err := eng.Issue(context.Background(), "passport", "", "carol", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Ticket.Number)
}

func TestEstimateUnknownQueue(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, Config{})

	_, _, err := eng.Estimate(context.Background(), uuid.NewString(), 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}
