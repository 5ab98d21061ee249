package model

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusPending   TicketStatus = "Pending"
	StatusCalled    TicketStatus = "Called"
	StatusServed    TicketStatus = "Served"
	StatusCancelled TicketStatus = "Cancelled"
)

// WalkInUserID is the sentinel owner for kiosk-issued physical tickets.
const WalkInUserID = "walk-in"

// Ticket is a numbered claim on a position in a queue.
type Ticket struct {
	ID      string `gorm:"primaryKey;size:36"`
	QueueID string `gorm:"index;not null;size:36"`
	UserID  string `gorm:"index;size:64;not null"`

	Number     int          `gorm:"not null"`
	QRCode     string       `gorm:"uniqueIndex;size:50;not null"`
	Priority   int          `gorm:"not null;default:0"`
	IsPhysical bool         `gorm:"not null;default:false"`
	Status     TicketStatus `gorm:"size:20;not null;default:Pending"`

	IssuedAt    time.Time `gorm:"not null"`
	ExpiresAt   *time.Time
	CalledAt    *time.Time
	ServedAt    *time.Time
	CancelledAt *time.Time

	Counter        *int
	ServiceMinutes *float64
	SwapOffered    bool `gorm:"not null;default:false"`

	// Associations
	Queue Queue `gorm:"constraint:OnDelete:CASCADE"`
}
