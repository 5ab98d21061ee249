package model

// QueueSchedule is one weekday entry of a queue's weekly schedule.
// OpensAt and ClosesAt use the "15:04" wall-clock format; a missing or
// malformed entry is treated as closed by the evaluator.
type QueueSchedule struct {
	ID       string `gorm:"primaryKey;size:36"`
	QueueID  string `gorm:"index;not null;size:36"`
	Weekday  int    `gorm:"not null"` // time.Weekday numbering, Sunday = 0
	OpensAt  string `gorm:"size:5"`
	ClosesAt string `gorm:"size:5"`
	Closed   bool   `gorm:"not null;default:false"`

	// Associations
	Queue Queue `gorm:"constraint:OnDelete:CASCADE"`
}
