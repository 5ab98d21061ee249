package model

import "time"

// AuditLog records a side-effecting action for later review.
type AuditLog struct {
	ID           string    `gorm:"primaryKey;size:36"`
	UserID       *string   `gorm:"index;size:64"`
	Action       string    `gorm:"size:64;not null"`
	ResourceType string    `gorm:"size:32;not null"`
	ResourceID   string    `gorm:"size:64;not null"`
	Detail       string    `gorm:"size:512"`
	CreatedAt    time.Time `gorm:"not null"`
}
