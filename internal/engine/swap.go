package engine

import (
	"context"
	"fmt"

	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/store"
)

// swapOfferFanout caps how many nearby ticket holders hear about a new offer.
const swapOfferFanout = 5

// OfferSwap marks the requester's pending ticket as available for swapping
// and tells a handful of other holders in the same queue about the offer.
func (e *Engine) OfferSwap(ctx context.Context, ticketID, userID string) (*model.Ticket, error) {
	found, err := e.store.TicketByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err)
	}

	var offered *model.Ticket
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		q, err := tx.QueueForUpdate(ctx, found.QueueID)
		if err != nil {
			return notFound(err)
		}
		t, err := tx.TicketByID(ctx, ticketID)
		if err != nil {
			return notFound(err)
		}
		if t.UserID != userID || t.Status != model.StatusPending || t.SwapOffered {
			return ErrInvalidOffer
		}
		t.SwapOffered = true
		if err := tx.SaveTicket(ctx, t); err != nil {
			return err
		}
		t.Queue = *q
		offered = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch.Notify(Event{
		Kind:     EventSwapOffered,
		QueueID:  offered.QueueID,
		TicketID: offered.ID,
		UserID:   offered.UserID,
		Message:  fmt.Sprintf("Your ticket %s is now offered for swap.", Label(&offered.Queue, offered)),
	})

	// Fan the offer out to the earliest-issued holders who could accept it.
	candidates, err := e.store.SwapCandidates(ctx, offered.QueueID, userID, swapOfferFanout)
	if err != nil {
		return offered, nil
	}
	position := offered.Number - offered.Queue.CurrentTicket
	if position < 0 {
		position = 0
	}
	for _, c := range candidates {
		e.dispatch.Notify(Event{
			Kind:     EventSwapOffered,
			QueueID:  offered.QueueID,
			TicketID: offered.ID,
			UserID:   c.UserID,
			Message:  fmt.Sprintf("Ticket %s is available for swap.", Label(&offered.Queue, offered)),
			Data: map[string]string{
				"position": fmt.Sprint(position),
				"service":  offered.Queue.Service,
			},
		})
	}
	return offered, nil
}

// AcceptSwap exchanges owner and number between the requester's ticket and a
// ticket previously offered for swap. Both tickets must be pending, in the
// same queue, held by different users, and the target must carry the offer.
// Both offer flags clear atomically with the exchange.
func (e *Engine) AcceptSwap(ctx context.Context, fromTicketID, toTicketID, userID string) (*model.Ticket, *model.Ticket, error) {
	from, err := e.store.TicketByID(ctx, fromTicketID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	to, err := e.store.TicketByID(ctx, toTicketID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	if from.QueueID != to.QueueID {
		return nil, nil, ErrInvalidSwap
	}

	var swappedFrom, swappedTo *model.Ticket
	err = e.store.Transaction(ctx, func(tx store.Store) error {
		// Both tickets share one queue, so a single row lock covers the pair.
		q, err := tx.QueueForUpdate(ctx, from.QueueID)
		if err != nil {
			return notFound(err)
		}
		from, err := tx.TicketByID(ctx, fromTicketID)
		if err != nil {
			return notFound(err)
		}
		to, err := tx.TicketByID(ctx, toTicketID)
		if err != nil {
			return notFound(err)
		}

		if from.UserID != userID ||
			!to.SwapOffered ||
			from.QueueID != to.QueueID ||
			from.UserID == to.UserID ||
			from.Status != model.StatusPending ||
			to.Status != model.StatusPending {
			return ErrInvalidSwap
		}

		from.UserID, to.UserID = to.UserID, from.UserID
		from.Number, to.Number = to.Number, from.Number
		from.SwapOffered, to.SwapOffered = false, false

		if err := tx.SaveTicket(ctx, from); err != nil {
			return err
		}
		if err := tx.SaveTicket(ctx, to); err != nil {
			return err
		}
		from.Queue = *q
		to.Queue = *q
		swappedFrom, swappedTo = from, to
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, t := range []*model.Ticket{swappedFrom, swappedTo} {
		e.dispatch.Notify(Event{
			Kind:     EventSwapped,
			QueueID:  t.QueueID,
			TicketID: t.ID,
			UserID:   t.UserID,
			Message:  fmt.Sprintf("Your ticket was swapped! New number: %s", Label(&t.Queue, t)),
		})
	}
	return swappedFrom, swappedTo, nil
}
