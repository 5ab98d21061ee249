package model

import "time"

// Queue is a service line belonging to a department. Its counters are only
// mutated inside the engine's per-queue transactions.
type Queue struct {
	ID           string  `gorm:"primaryKey;size:36"`
	DepartmentID string  `gorm:"index;not null;size:36"`
	CategoryID   *string `gorm:"index;size:36"`
	Service      string  `gorm:"index;size:64;not null"`
	Prefix       string  `gorm:"size:10;not null"`

	DailyLimit    int `gorm:"not null"`
	ActiveTickets int `gorm:"not null;default:0"`
	CurrentTicket int `gorm:"not null;default:0"`
	CounterCount  int `gorm:"not null;default:1"`
	LastCounter   int `gorm:"not null;default:0"`

	// Rolling averages maintained by the estimator and presence validation.
	AvgWaitMinutes     *float64
	LastServiceMinutes *float64

	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	Department Department      `gorm:"constraint:OnDelete:CASCADE"`
	Tickets    []Ticket        `gorm:"foreignKey:QueueID"`
	Schedules  []QueueSchedule `gorm:"foreignKey:QueueID"`
}

// ServiceTag is a search keyword attached to a queue.
type ServiceTag struct {
	ID      string `gorm:"primaryKey;size:36"`
	QueueID string `gorm:"index;not null;size:36"`
	Tag     string `gorm:"index;size:64;not null"`

	// Associations
	Queue Queue `gorm:"constraint:OnDelete:CASCADE"`
}
