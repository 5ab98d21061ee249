package engine

import "errors"

// Business-rule violations surfaced to callers. Each aborts its transaction
// with no partial mutation; none is retried by the engine.
var (
	ErrQueueClosed     = errors.New("queue is closed")
	ErrQueueFull       = errors.New("queue reached its daily limit")
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrNoPendingTicket = errors.New("no pending ticket")
	ErrDuplicateTicket = errors.New("user already holds a pending ticket")
	ErrInvalidState    = errors.New("ticket state does not allow this operation")
	ErrInvalidOffer    = errors.New("ticket cannot be offered for swap")
	ErrInvalidSwap     = errors.New("swap preconditions not met")
	ErrNotCalled       = errors.New("ticket has not been called")
	ErrTooFar          = errors.New("too far from the branch")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("issuance limit reached, try again later")
)
