package engine

// EventKind identifies a state-change event emitted by the engine.
type EventKind string

const (
	EventIssued      EventKind = "issued"
	EventCalled      EventKind = "called"
	EventCancelled   EventKind = "cancelled"
	EventSwapped     EventKind = "swapped"
	EventSwapOffered EventKind = "swap_offered"
	EventProximity   EventKind = "proximity"
)

// Event describes a ticket or queue state change. Dispatch happens after the
// owning transaction commits; delivery is best effort.
type Event struct {
	Kind     EventKind
	QueueID  string
	TicketID string
	UserID   string
	Message  string
	Data     map[string]string
}

// Dispatcher fans events out to notification transports. Implementations
// must not block and must never return delivery failures to the engine.
type Dispatcher interface {
	Notify(ev Event)
}

// DistanceCalculator computes the distance in km between two coordinate
// pairs; ok is false when the distance cannot be determined.
type DistanceCalculator interface {
	Distance(lat1, lon1, lat2, lon2 float64) (float64, bool)
}
