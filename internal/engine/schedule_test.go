package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"queue-ticketing-backend/internal/model"
)

func TestIsOpen(t *testing.T) {
	// 2025-03-12 is a Wednesday (weekday 3).
	wednesday := func(hour, minute int) time.Time {
		return time.Date(2025, 3, 12, hour, minute, 0, 0, time.UTC)
	}
	open := model.QueueSchedule{Weekday: 3, OpensAt: "08:00", ClosesAt: "18:00"}

	testCases := []struct {
		name      string
		schedules []model.QueueSchedule
		now       time.Time
		want      bool
	}{
		{"within hours", []model.QueueSchedule{open}, wednesday(10, 0), true},
		{"at opening minute", []model.QueueSchedule{open}, wednesday(8, 0), true},
		{"at closing minute", []model.QueueSchedule{open}, wednesday(18, 0), true},
		{"before opening", []model.QueueSchedule{open}, wednesday(7, 59), false},
		{"after closing", []model.QueueSchedule{open}, wednesday(18, 1), false},
		{"no entry for weekday", []model.QueueSchedule{{Weekday: 4, OpensAt: "08:00", ClosesAt: "18:00"}}, wednesday(10, 0), false},
		{"no schedule at all", nil, wednesday(10, 0), false},
		{"closed flag set", []model.QueueSchedule{{Weekday: 3, OpensAt: "08:00", ClosesAt: "18:00", Closed: true}}, wednesday(10, 0), false},
		{"malformed opening time", []model.QueueSchedule{{Weekday: 3, OpensAt: "8am", ClosesAt: "18:00"}}, wednesday(10, 0), false},
		{"malformed closing time", []model.QueueSchedule{{Weekday: 3, OpensAt: "08:00", ClosesAt: ""}}, wednesday(10, 0), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsOpen(tc.schedules, tc.now))
		})
	}
}
