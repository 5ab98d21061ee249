package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-ticketing-backend/internal/model"
)

func TestOfferSwapFlagsTicket(t *testing.T) {
	eng, _, rec, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)

	offered, err := eng.OfferSwap(context.Background(), issued.Ticket.ID, "alice")
	require.NoError(t, err)
	assert.True(t, offered.SwapOffered)

	// The owner hears about it, and so does the other holder in the queue.
	kinds := rec.kinds()
	assert.Equal(t, EventSwapOffered, kinds[len(kinds)-2])
	assert.Equal(t, EventSwapOffered, kinds[len(kinds)-1])
}

func TestOfferSwapRejectsRepeatOffer(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	_, err = eng.OfferSwap(context.Background(), issued.Ticket.ID, "alice")
	require.NoError(t, err)

	_, err = eng.OfferSwap(context.Background(), issued.Ticket.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidOffer)
}

func TestOfferSwapRejectsNonOwner(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)

	_, err = eng.OfferSwap(context.Background(), issued.Ticket.ID, "mallory")
	assert.ErrorIs(t, err, ErrInvalidOffer)
}

func TestAcceptSwapExchangesOwnersAndNumbers(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	offeredBy, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	acceptedBy, err := eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)

	_, err = eng.OfferSwap(context.Background(), offeredBy.Ticket.ID, "alice")
	require.NoError(t, err)

	from, to, err := eng.AcceptSwap(context.Background(), acceptedBy.Ticket.ID, offeredBy.Ticket.ID, "bob")
	require.NoError(t, err)

	// Bob's ticket now carries Alice's identity and number, and vice versa.
	assert.Equal(t, "alice", from.UserID)
	assert.Equal(t, 1, from.Number)
	assert.Equal(t, "bob", to.UserID)
	assert.Equal(t, 2, to.Number)
	assert.False(t, from.SwapOffered)
	assert.False(t, to.SwapOffered)

	var stored model.Ticket
	require.NoError(t, gdb.First(&stored, "id = ?", offeredBy.Ticket.ID).Error)
	assert.Equal(t, "bob", stored.UserID)
	assert.False(t, stored.SwapOffered)
}

func TestAcceptSwapRequiresOffer(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	first, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	second, err := eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)

	_, _, err = eng.AcceptSwap(context.Background(), second.Ticket.ID, first.Ticket.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidSwap)
}

func TestAcceptSwapRejectsOwnTicket(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	issued, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	_, err = eng.OfferSwap(context.Background(), issued.Ticket.ID, "alice")
	require.NoError(t, err)

	_, _, err = eng.AcceptSwap(context.Background(), issued.Ticket.ID, issued.Ticket.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidSwap)
}

func TestAcceptSwapRejectsCrossQueue(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)
	seedQueue(t, gdb, "licence", 10, 1)

	first, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	second, err := eng.Issue(context.Background(), "licence", "", "bob", 0, false)
	require.NoError(t, err)

	_, err = eng.OfferSwap(context.Background(), first.Ticket.ID, "alice")
	require.NoError(t, err)

	_, _, err = eng.AcceptSwap(context.Background(), second.Ticket.ID, first.Ticket.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidSwap)
}

func TestAcceptSwapRejectsCalledTicket(t *testing.T) {
	eng, _, _, gdb := newTestEngine(t, Config{})
	seedQueue(t, gdb, "passport", 10, 1)

	offeredBy, err := eng.Issue(context.Background(), "passport", "", "alice", 0, false)
	require.NoError(t, err)
	acceptedBy, err := eng.Issue(context.Background(), "passport", "", "bob", 0, false)
	require.NoError(t, err)
	_, err = eng.OfferSwap(context.Background(), offeredBy.Ticket.ID, "alice")
	require.NoError(t, err)

	// Alice's ticket gets called before Bob accepts.
	_, err = eng.CallNext(context.Background(), "passport", "")
	require.NoError(t, err)

	_, _, err = eng.AcceptSwap(context.Background(), acceptedBy.Ticket.ID, offeredBy.Ticket.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidSwap)
}
