package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"queue-ticketing-backend/internal/cache"
	"queue-ticketing-backend/internal/db"
	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/predict"
	"queue-ticketing-backend/internal/store"
)

// testNow is a Wednesday morning; the seeded schedules are open then.
var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

// eventRecorder captures dispatched events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// fixedDistance always reports the same distance.
type fixedDistance struct {
	km float64
	ok bool
}

func (d fixedDistance) Distance(_, _, _, _ float64) (float64, bool) {
	return d.km, d.ok
}

// newTestDB opens a uniquely named in-memory SQLite database and migrates the
// full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(db.Models()...))
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		sqlDB.Close()
	})
	return gdb
}

// seedQueue creates an institution, branch, department and a queue open every
// day of the week.
func seedQueue(t *testing.T, gdb *gorm.DB, service string, dailyLimit, counterCount int) *model.Queue {
	t.Helper()

	lat, lon := -8.05, -34.9
	inst := model.Institution{ID: uuid.NewString(), Name: "Institution " + service}
	require.NoError(t, gdb.Create(&inst).Error)
	branch := model.Branch{
		ID: uuid.NewString(), InstitutionID: inst.ID,
		Name: "Main", Neighborhood: "Centro", Latitude: &lat, Longitude: &lon,
	}
	require.NoError(t, gdb.Create(&branch).Error)
	dept := model.Department{ID: uuid.NewString(), BranchID: branch.ID, Name: "Front Desk", Sector: "General"}
	require.NoError(t, gdb.Create(&dept).Error)

	q := model.Queue{
		ID:           uuid.NewString(),
		DepartmentID: dept.ID,
		Service:      service,
		Prefix:       "A",
		DailyLimit:   dailyLimit,
		CounterCount: counterCount,
	}
	require.NoError(t, gdb.Create(&q).Error)

	for weekday := 0; weekday < 7; weekday++ {
		require.NoError(t, gdb.Create(&model.QueueSchedule{
			ID: uuid.NewString(), QueueID: q.ID,
			Weekday: weekday, OpensAt: "08:00", ClosesAt: "18:00",
		}).Error)
	}
	return &q
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, store.Store, *eventRecorder, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	st := store.NewGormStore(gdb)
	rec := &eventRecorder{}
	eng := New(st, predict.NoModel{}, fixedDistance{ok: false}, rec, cache.NewMemory(), cfg,
		func() time.Time { return testNow })
	return eng, st, rec, gdb
}

func TestIssueAssignsSequentialNumbers(t *testing.T) {
	eng, _, rec, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)

	first, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	second, err := eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Ticket.Number)
	assert.Equal(t, 2, second.Ticket.Number)
	assert.Equal(t, "A1", Label(&first.Ticket.Queue, first.Ticket))
	assert.Contains(t, first.Ticket.QRCode, "QR-")
	assert.Equal(t, model.StatusPending, first.Ticket.Status)

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	assert.Equal(t, 2, fresh.ActiveTickets)

	assert.Equal(t, []EventKind{EventIssued, EventIssued}, rec.kinds())
}

func TestIssueRejectsDuplicatePending(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	_, err = eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	assert.ErrorIs(t, err, ErrDuplicateTicket)
}

func TestIssueRejectsFullQueue(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 2, 1)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)

	_, err = eng.Issue(context.Background(), "passport", "", "carol", 0, false)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestIssueRejectsClosedQueue(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)
	require.NoError(t, gdb.Model(&model.QueueSchedule{}).
		Where("queue_id = ?", q.ID).Update("closed", true).Error)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestIssueUnknownService(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, Config{})

	_, err := eng.Issue(context.Background(), "no-such-service", "", "alice", 0, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCallNextPrefersPriority(t *testing.T) {
	eng, _, rec, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 2)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	elevated, err := eng.Issue(context.Background(), "passport", "", "bob", 2, false)
	require.NoError(t, err)

	called, err := eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)
	assert.Equal(t, elevated.Ticket.ID, called.ID)
	assert.Equal(t, model.StatusCalled, called.Status)
	require.NotNil(t, called.Counter)
	assert.Equal(t, 1, *called.Counter)
	require.NotNil(t, called.ExpiresAt)
	assert.Equal(t, testNow.Add(5*time.Minute), called.ExpiresAt.UTC())

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	assert.Equal(t, 1, fresh.ActiveTickets)
	assert.Equal(t, called.Number, fresh.CurrentTicket)

	// Counters rotate round-robin.
	next, err := eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)
	assert.Equal(t, 2, *next.Counter)

	_, err = eng.CallNext(context.Background(), "passport", "")
	assert.ErrorIs(t, err, ErrQueueEmpty)

	assert.Equal(t, []EventKind{EventIssued, EventIssued, EventCalled, EventCalled}, rec.kinds())
}

func TestSlotFreedByCallAllowsReissue(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 2, 1)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)

	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	// The call freed a slot against the daily limit.
	_, err = eng.Issue(context.Background(), "passport", "", "carol", 0, false)
	assert.NoError(t, err)
}

func TestCancelReleasesTicket(t *testing.T) {
	eng, _, rec, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	cancelled, err := eng.Cancel(context.Background(), issued.Ticket.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	assert.Equal(t, 0, fresh.ActiveTickets)

	assert.Equal(t, []EventKind{EventIssued, EventCancelled}, rec.kinds())
}

func TestCancelRejectsWrongUser(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	_, err = eng.Cancel(context.Background(), issued.Ticket.ID, "mallory")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelRejectsCalledTicket(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	_, err = eng.Cancel(context.Background(), issued.Ticket.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestValidatePresenceServesCalledTicket(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	served, err := eng.ValidatePresence(context.Background(), TicketRef{QRCode: issued.Ticket.QRCode}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusServed, served.Status)
	require.NotNil(t, served.ServedAt)

	var audits int64
	require.NoError(t, gdb.Model(&model.AuditLog{}).
		Where("action = ?", "PRESENCE_VALIDATED").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestValidatePresenceRejectsPendingTicket(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	_, err = eng.ValidatePresence(context.Background(), TicketRef{QRCode: issued.Ticket.QRCode}, nil, nil)
	assert.ErrorIs(t, err, ErrNotCalled)
}

func TestValidatePresenceRejectsDistantHolder(t *testing.T) {
	gdb := newTestDB(t)
	st := store.NewGormStore(gdb)
	eng := New(st, predict.NoModel{}, fixedDistance{km: 3.2, ok: true}, &eventRecorder{},
		cache.NewMemory(), Config{}, func() time.Time { return testNow })
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	lat, lon := -8.1, -34.8
	_, err = eng.ValidatePresence(context.Background(), TicketRef{QRCode: issued.Ticket.QRCode}, &lat, &lon)
	assert.ErrorIs(t, err, ErrTooFar)
}

func TestValidatePresenceRecordsServiceDuration(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)

	// A ticket served eight minutes ago anchors the duration measurement.
	earlier := testNow.Add(-8 * time.Minute)
	require.NoError(t, gdb.Create(&model.Ticket{
		ID: uuid.NewString(), QueueID: q.ID, UserID: "prev", Number: 1,
		QRCode: "QR-prev", Status: model.StatusServed,
		IssuedAt: earlier.Add(-time.Hour), ServedAt: &earlier,
	}).Error)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	served, err := eng.ValidatePresence(context.Background(), TicketRef{QRCode: issued.Ticket.QRCode}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, served.ServiceMinutes)
	assert.InDelta(t, 8.0, *served.ServiceMinutes, 0.01)

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	require.NotNil(t, fresh.LastServiceMinutes)
	assert.InDelta(t, 8.0, *fresh.LastServiceMinutes, 0.01)
}

func TestValidatePresenceByQueueAndNumber(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	served, err := eng.ValidatePresence(context.Background(), TicketRef{QueueID: q.ID, Number: issued.Ticket.Number}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, issued.Ticket.ID, served.ID)
}

func TestIssueKioskThrottlesPerIP(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{KioskHourlyLimit: 2})
	q := seedQueue(t, gdb, "passport", 10, 1)

	first, err := eng.IssueKiosk(context.Background(), q.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, model.WalkInUserID, first.Ticket.UserID)
	assert.True(t, first.Ticket.IsPhysical)
	require.NotNil(t, first.Ticket.ExpiresAt)
	assert.Equal(t, testNow.Add(4*time.Hour), first.Ticket.ExpiresAt.UTC())

	_, err = eng.IssueKiosk(context.Background(), q.ID, "10.0.0.1")
	require.NoError(t, err)

	_, err = eng.IssueKiosk(context.Background(), q.ID, "10.0.0.1")
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different IP still gets through.
	_, err = eng.IssueKiosk(context.Background(), q.ID, "10.0.0.2")
	assert.NoError(t, err)

	var audits int64
	require.NoError(t, gdb.Model(&model.AuditLog{}).
		Where("action = ?", "KIOSK_TICKET_ISSUED").Count(&audits).Error)
	assert.Equal(t, int64(3), audits)
}

func TestIssueKioskAllowsMultipleWalkIns(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{KioskHourlyLimit: 5})
	q := seedQueue(t, gdb, "passport", 10, 1)

	// Walk-in tickets share one sentinel owner and must not trip the
	// duplicate-pending check.
	_, err := eng.IssueKiosk(context.Background(), q.ID, "10.0.0.1")
	require.NoError(t, err)
	_, err = eng.IssueKiosk(context.Background(), q.ID, "10.0.0.1")
	assert.NoError(t, err)
}

func TestConcurrentIssuesFormPermutation(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 50, 1)

	const holders = 8
	numbers := make(chan int, holders)
	var wg sync.WaitGroup
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			// Serialization conflicts are the caller's to retry.
			for attempt := 0; attempt < 500; attempt++ {
				res, err := eng.Issue(context.Background(), "passport", "", user, 0, false)
				if err == nil {
					numbers <- res.Ticket.Number
					return
				}
				time.Sleep(time.Millisecond)
			}
			numbers <- -1
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()
	close(numbers)

	issued := make(map[int]bool)
	for n := range numbers {
		assert.False(t, issued[n], "number %d issued twice", n)
		issued[n] = true
	}
	for n := 1; n <= holders; n++ {
		assert.True(t, issued[n], "number %d never issued", n)
	}

	var fresh model.Queue
	require.NoError(t, gdb.First(&fresh, "id = ?", q.ID).Error)
	assert.Equal(t, holders, fresh.ActiveTickets)
}

func TestCallNextToleratesZeroCounterCount(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	q := seedQueue(t, gdb, "passport", 10, 1)
	require.NoError(t, gdb.Model(&model.Queue{}).Where("id = ?", q.ID).
		Update("counter_count", 0).Error)

	_, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	// A row carrying a zero counter count still gets counter 1.
	called, err := eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)
	require.NotNil(t, called.Counter)
	assert.Equal(t, 1, *called.Counter)
}
