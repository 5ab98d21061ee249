package model

import "time"

// UserProfile holds the engine-visible slice of a user: their last known
// location, used for proximity notifications. Account data lives elsewhere.
type UserProfile struct {
	UserID         string `gorm:"primaryKey;size:64"`
	LastLatitude   *float64
	LastLongitude  *float64
	LastLocationAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserPreference marks an institution or category a user favors; either
// reference may be nil.
type UserPreference struct {
	ID            string  `gorm:"primaryKey;size:36"`
	UserID        string  `gorm:"index;not null;size:64"`
	InstitutionID *string `gorm:"size:36"`
	CategoryID    *string `gorm:"size:36"`
}
