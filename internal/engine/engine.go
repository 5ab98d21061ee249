// Package engine owns ticket and queue state. Every mutating operation runs
// as one transaction with the owning queue's row locked, so counters and
// ticket statuses never interleave across concurrent callers. Notifications
// are dispatched only after the transaction commits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"queue-ticketing-backend/internal/cache"
	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/predict"
	"queue-ticketing-backend/internal/store"
)

// Config holds the engine tunables.
type Config struct {
	CallTimeout           time.Duration
	KioskExpiry           time.Duration
	KioskHourlyLimit      int
	ProximityKM           float64
	PresenceProximityKM   float64
	DefaultServiceMinutes float64
}

// Engine is the queue ticketing engine. Construct with New; all collaborator
// capabilities are injected, no package-level state.
type Engine struct {
	store     store.Store
	estimator *Estimator
	distance  DistanceCalculator
	dispatch  Dispatcher
	cache     cache.Store
	cfg       Config
	now       func() time.Time
}

// New creates an engine. A nil nowFn defaults to time.Now.
func New(st store.Store, predictor predict.WaitPredictor, distance DistanceCalculator,
	dispatch Dispatcher, kv cache.Store, cfg Config, nowFn func() time.Time) *Engine {
	if nowFn == nil {
		nowFn = time.Now
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	if cfg.KioskExpiry <= 0 {
		cfg.KioskExpiry = 4 * time.Hour
	}
	if cfg.KioskHourlyLimit <= 0 {
		cfg.KioskHourlyLimit = 5
	}
	if cfg.ProximityKM <= 0 {
		cfg.ProximityKM = 1.0
	}
	if cfg.PresenceProximityKM <= 0 {
		cfg.PresenceProximityKM = 0.5
	}
	if cfg.DefaultServiceMinutes <= 0 {
		cfg.DefaultServiceMinutes = 5
	}
	return &Engine{
		store:     st,
		estimator: NewEstimator(predictor, cfg.DefaultServiceMinutes),
		distance:  distance,
		dispatch:  dispatch,
		cache:     kv,
		cfg:       cfg,
		now:       nowFn,
	}
}

// IssueResult is returned by the issuance operations.
type IssueResult struct {
	Ticket      *model.Ticket
	Position    int
	WaitMinutes float64
	WaitKnown   bool
}

// Label renders the user-facing ticket number, e.g. "A12".
func Label(q *model.Queue, t *model.Ticket) string {
	return fmt.Sprintf("%s%d", q.Prefix, t.Number)
}

func newQRCode() string {
	return "QR-" + uuid.NewString()[:8]
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Issue creates a pending ticket for userID in the queue serving the given
// service, optionally scoped to a branch.
func (e *Engine) Issue(ctx context.Context, service, branchID, userID string, priority int, physical bool) (*IssueResult, error) {
	q, err := e.store.QueueByService(ctx, service, branchID)
	if err != nil {
		return nil, notFound(err)
	}
	return e.issue(ctx, q.ID, userID, priority, physical, nil)
}

// issue runs the shared issuance transaction. expiry, when non-nil, stamps
// the new ticket (kiosk tickets expire a few hours after printing).
func (e *Engine) issue(ctx context.Context, queueID, userID string, priority int, physical bool, expiry *time.Duration) (*IssueResult, error) {
	var result IssueResult
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		q, err := tx.QueueForUpdate(ctx, queueID)
		if err != nil {
			return notFound(err)
		}
		schedules, err := tx.SchedulesFor(ctx, q.ID)
		if err != nil {
			return err
		}
		now := e.now()
		if !IsOpen(schedules, now) {
			return ErrQueueClosed
		}
		if q.ActiveTickets >= q.DailyLimit {
			return ErrQueueFull
		}
		if userID != model.WalkInUserID {
			exists, err := tx.HasPendingTicket(ctx, q.ID, userID)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateTicket
			}
		}

		ticket := &model.Ticket{
			ID:         uuid.NewString(),
			QueueID:    q.ID,
			UserID:     userID,
			Number:     q.ActiveTickets + 1,
			QRCode:     newQRCode(),
			Priority:   priority,
			IsPhysical: physical,
			Status:     model.StatusPending,
			IssuedAt:   now,
		}
		if expiry != nil {
			at := now.Add(*expiry)
			ticket.ExpiresAt = &at
		}

		q.ActiveTickets++
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			return err
		}

		minutes, known, err := e.estimator.forTicket(ctx, tx, q, schedules, ticket.Number, priority, now)
		if err != nil {
			return err
		}
		if err := tx.SaveQueue(ctx, q); err != nil {
			return err
		}

		position := ticket.Number - q.CurrentTicket
		if position < 0 {
			position = 0
		}
		result = IssueResult{Ticket: ticket, Position: position, WaitMinutes: minutes, WaitKnown: known}
		result.Ticket.Queue = *q
		return nil
	})
	if err != nil {
		return nil, err
	}

	t := result.Ticket
	e.dispatch.Notify(Event{
		Kind:     EventIssued,
		QueueID:  t.QueueID,
		TicketID: t.ID,
		UserID:   t.UserID,
		Message:  fmt.Sprintf("Ticket %s issued. QR: %s", Label(&t.Queue, t), t.QRCode),
		Data: map[string]string{
			"active_tickets": fmt.Sprint(t.Queue.ActiveTickets),
			"current_ticket": fmt.Sprint(t.Queue.CurrentTicket),
		},
	})
	return &result, nil
}

// IssueKiosk creates a physical walk-in ticket from a self-service kiosk.
// Issuance from one client IP is limited per institution per hour; if the
// shared limiter is unreachable the limit is waived rather than blocking.
func (e *Engine) IssueKiosk(ctx context.Context, queueID, clientIP string) (*IssueResult, error) {
	branch, err := e.store.BranchForQueue(ctx, queueID)
	if err != nil {
		return nil, notFound(err)
	}

	key := fmt.Sprintf("kiosk_limit:%s:%s", clientIP, branch.InstitutionID)
	count, err := e.cache.Incr(ctx, key, time.Hour)
	if err != nil {
		log.Printf("kiosk limiter unavailable for %s: %v. Proceeding without limit.", clientIP, err)
	} else if count > int64(e.cfg.KioskHourlyLimit) {
		return nil, ErrRateLimited
	}

	expiry := e.cfg.KioskExpiry
	result, err := e.issue(ctx, queueID, model.WalkInUserID, 0, true, &expiry)
	if err != nil {
		return nil, err
	}

	e.recordAudit(ctx, nil, "KIOSK_TICKET_ISSUED", "Ticket", result.Ticket.ID,
		fmt.Sprintf("Ticket %s issued from kiosk (IP: %s)", result.Ticket.QRCode, clientIP))
	return result, nil
}

// CallNext calls the next pending ticket in the queue serving service:
// highest priority first, lowest number within a priority band. The selected
// ticket is assigned a counter round-robin and must validate presence before
// the call timeout.
func (e *Engine) CallNext(ctx context.Context, service, branchID string) (*model.Ticket, error) {
	q, err := e.store.QueueByService(ctx, service, branchID)
	if err != nil {
		return nil, notFound(err)
	}

	var called *model.Ticket
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		q, err := tx.QueueForUpdate(ctx, q.ID)
		if err != nil {
			return notFound(err)
		}
		schedules, err := tx.SchedulesFor(ctx, q.ID)
		if err != nil {
			return err
		}
		now := e.now()
		if !IsOpen(schedules, now) {
			return ErrQueueClosed
		}
		if q.ActiveTickets == 0 {
			return ErrQueueEmpty
		}

		next, err := tx.NextPendingTicket(ctx, q.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingTicket
			}
			return err
		}

		expires := now.Add(e.cfg.CallTimeout)
		q.CurrentTicket = next.Number
		q.ActiveTickets--
		counters := q.CounterCount
		if counters < 1 {
			counters = 1
		}
		q.LastCounter = (q.LastCounter % counters) + 1
		counter := q.LastCounter

		next.Status = model.StatusCalled
		next.CalledAt = &now
		next.ExpiresAt = &expires
		next.Counter = &counter

		if err := tx.SaveTicket(ctx, next); err != nil {
			return err
		}
		if err := tx.SaveQueue(ctx, q); err != nil {
			return err
		}
		next.Queue = *q
		called = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch.Notify(Event{
		Kind:     EventCalled,
		QueueID:  called.QueueID,
		TicketID: called.ID,
		UserID:   called.UserID,
		Message:  fmt.Sprintf("Go to counter %02d! Ticket %s called.", *called.Counter, Label(&called.Queue, called)),
		Data: map[string]string{
			"active_tickets": fmt.Sprint(called.Queue.ActiveTickets),
			"current_ticket": fmt.Sprint(called.Queue.CurrentTicket),
			"counter":        fmt.Sprint(*called.Counter),
		},
	})
	e.recordAudit(ctx, nil, "TICKET_CALLED", "Ticket", called.ID,
		fmt.Sprintf("Ticket %s called to counter %02d", called.QRCode, *called.Counter))
	return called, nil
}

// TicketRef identifies a ticket either by QR code or by (queue, number).
type TicketRef struct {
	QRCode  string
	QueueID string
	Number  int
}

func (e *Engine) resolveTicket(ctx context.Context, ref TicketRef) (*model.Ticket, error) {
	var (
		t   *model.Ticket
		err error
	)
	if ref.QRCode != "" {
		t, err = e.store.TicketByQR(ctx, ref.QRCode)
	} else {
		t, err = e.store.TicketByQueueNumber(ctx, ref.QueueID, ref.Number)
	}
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// ValidatePresence confirms the holder of a called ticket arrived at the
// counter and closes the ticket as served. When caller coordinates are
// supplied the holder must be within the presence radius of the branch.
// The measured service duration is the gap to the previous served ticket.
func (e *Engine) ValidatePresence(ctx context.Context, ref TicketRef, lat, lon *float64) (*model.Ticket, error) {
	found, err := e.resolveTicket(ctx, ref)
	if err != nil {
		return nil, err
	}

	var served *model.Ticket
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		q, err := tx.QueueForUpdate(ctx, found.QueueID)
		if err != nil {
			return notFound(err)
		}
		t, err := tx.TicketByID(ctx, found.ID)
		if err != nil {
			return notFound(err)
		}
		if t.Status != model.StatusCalled {
			return ErrNotCalled
		}
		schedules, err := tx.SchedulesFor(ctx, q.ID)
		if err != nil {
			return err
		}
		now := e.now()
		if !IsOpen(schedules, now) {
			return ErrQueueClosed
		}

		if lat != nil && lon != nil {
			branch, err := tx.BranchForQueue(ctx, q.ID)
			if err != nil {
				return err
			}
			if branch.Latitude != nil && branch.Longitude != nil {
				if km, ok := e.distance.Distance(*lat, *lon, *branch.Latitude, *branch.Longitude); ok && km > e.cfg.PresenceProximityKM {
					return ErrTooFar
				}
			}
		}

		t.Status = model.StatusServed
		t.ServedAt = &now

		prev, err := tx.PreviousServedAt(ctx, q.ID, now)
		if err != nil {
			return err
		}
		if prev != nil {
			minutes := now.Sub(*prev).Minutes()
			t.ServiceMinutes = &minutes
			q.LastServiceMinutes = &minutes
		}

		if err := tx.SaveTicket(ctx, t); err != nil {
			return err
		}
		if err := tx.SaveQueue(ctx, q); err != nil {
			return err
		}
		t.Queue = *q
		served = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordAudit(ctx, nil, "PRESENCE_VALIDATED", "Ticket", served.ID,
		fmt.Sprintf("Ticket %s validated at counter", served.QRCode))
	return served, nil
}

// Cancel cancels the requester's own pending ticket and frees its slot.
func (e *Engine) Cancel(ctx context.Context, ticketID, userID string) (*model.Ticket, error) {
	found, err := e.store.TicketByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err)
	}

	var cancelled *model.Ticket
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		q, err := tx.QueueForUpdate(ctx, found.QueueID)
		if err != nil {
			return notFound(err)
		}
		t, err := tx.TicketByID(ctx, ticketID)
		if err != nil {
			return notFound(err)
		}
		if t.UserID != userID {
			return ErrInvalidState
		}
		if t.Status != model.StatusPending {
			return ErrInvalidState
		}

		now := e.now()
		t.Status = model.StatusCancelled
		t.CancelledAt = &now
		q.ActiveTickets--

		if err := tx.SaveTicket(ctx, t); err != nil {
			return err
		}
		if err := tx.SaveQueue(ctx, q); err != nil {
			return err
		}
		t.Queue = *q
		cancelled = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch.Notify(Event{
		Kind:     EventCancelled,
		QueueID:  cancelled.QueueID,
		TicketID: cancelled.ID,
		UserID:   cancelled.UserID,
		Message:  fmt.Sprintf("Your ticket %s was cancelled.", Label(&cancelled.Queue, cancelled)),
		Data: map[string]string{
			"active_tickets": fmt.Sprint(cancelled.Queue.ActiveTickets),
			"current_ticket": fmt.Sprint(cancelled.Queue.CurrentTicket),
		},
	})
	return cancelled, nil
}

func (e *Engine) recordAudit(ctx context.Context, userID *string, action, resourceType, resourceID, detail string) {
	entry := &model.AuditLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
		CreatedAt:    e.now(),
	}
	if err := e.store.RecordAudit(ctx, entry); err != nil {
		log.Printf("audit record failed for %s %s: %v", action, resourceID, err)
	}
}
