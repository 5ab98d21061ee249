package engine

import (
	"time"

	"queue-ticketing-backend/internal/model"
)

// IsOpen reports whether a queue is open at the given instant per its weekly
// schedule. Absence of an entry for the weekday, a closed flag, or a
// malformed time all count as closed.
func IsOpen(schedules []model.QueueSchedule, now time.Time) bool {
	weekday := int(now.Weekday())
	for _, entry := range schedules {
		if entry.Weekday != weekday {
			continue
		}
		if entry.Closed {
			return false
		}
		opens, err := minuteOfDay(entry.OpensAt)
		if err != nil {
			return false
		}
		closes, err := minuteOfDay(entry.ClosesAt)
		if err != nil {
			return false
		}
		current := now.Hour()*60 + now.Minute()
		return opens <= current && current <= closes
	}
	return false
}

func minuteOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
