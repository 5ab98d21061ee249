package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/store"
)

// ExpireSweep reconciles overdue tickets: pending tickets in queues that have
// since closed are auto-cancelled, as are called tickets whose holder missed
// the presence deadline. Safe to run on any cadence; each ticket is
// re-checked under its queue's lock so concurrent mutations win.
func (e *Engine) ExpireSweep(ctx context.Context) error {
	now := e.now()

	pending, err := e.store.PendingTickets(ctx)
	if err != nil {
		return fmt.Errorf("sweep: listing pending tickets: %w", err)
	}
	closedQueues := map[string]bool{}
	for _, t := range pending {
		open, seen := closedQueues[t.QueueID]
		if !seen {
			schedules, err := e.store.SchedulesFor(ctx, t.QueueID)
			if err != nil {
				log.Printf("sweep: schedules for queue %s: %v", t.QueueID, err)
				continue
			}
			open = IsOpen(schedules, now)
			closedQueues[t.QueueID] = open
		}
		if open {
			continue
		}
		e.expireTicket(ctx, t.ID, model.StatusPending,
			"Your ticket %s was cancelled because the service period ended.")
	}

	expired, err := e.store.ExpiredCalledTickets(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep: listing expired called tickets: %w", err)
	}
	for _, t := range expired {
		e.expireTicket(ctx, t.ID, model.StatusCalled,
			"Your ticket %s was cancelled because presence was not validated in time.")
	}
	return nil
}

// expireTicket cancels one ticket if it is still in the expected status,
// decrementing the queue's active count. Messages take the ticket label.
func (e *Engine) expireTicket(ctx context.Context, ticketID string, expect model.TicketStatus, msgFormat string) {
	var cancelled *model.Ticket
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		t, err := tx.TicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		q, err := tx.QueueForUpdate(ctx, t.QueueID)
		if err != nil {
			return err
		}
		t, err = tx.TicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Status != expect {
			// Another mutation got here first; nothing to do.
			return nil
		}

		now := e.now()
		t.Status = model.StatusCancelled
		t.CancelledAt = &now
		// Called tickets already gave their slot back when they were called.
		if expect == model.StatusPending {
			q.ActiveTickets--
		}

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
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("sweep: expiring ticket %s: %v", ticketID, err)
		}
		return
	}
	if cancelled == nil {
		return
	}

	e.dispatch.Notify(Event{
		Kind:     EventCancelled,
		QueueID:  cancelled.QueueID,
		TicketID: cancelled.ID,
		UserID:   cancelled.UserID,
		Message:  fmt.Sprintf(msgFormat, Label(&cancelled.Queue, cancelled)),
	})
}

// RunSweeper drives ExpireSweep on the given interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	log.Printf("sweeper started, interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.ExpireSweep(ctx); err != nil {
				log.Printf("sweep failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("sweeper shutting down")
			return
		}
	}
}
