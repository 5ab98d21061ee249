package model

import "time"

// Institution represents an organization offering services (bank, registry, clinic).
type Institution struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"uniqueIndex;size:128;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Branches []Branch `gorm:"foreignKey:InstitutionID"`
}

// Branch is a physical location of an institution.
type Branch struct {
	ID            string `gorm:"primaryKey;size:36"`
	InstitutionID string `gorm:"index;not null;size:36"`
	Name          string `gorm:"size:128;not null"`
	Neighborhood  string `gorm:"size:128"`
	Latitude      *float64
	Longitude     *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Associations
	Institution Institution  `gorm:"constraint:OnDelete:CASCADE"`
	Departments []Department `gorm:"foreignKey:BranchID"`
}

// Department groups the queues of a branch by sector.
type Department struct {
	ID       string `gorm:"primaryKey;size:36"`
	BranchID string `gorm:"index;not null;size:36"`
	Name     string `gorm:"size:64;not null"`
	Sector   string `gorm:"size:64"`

	// Associations
	Branch Branch `gorm:"constraint:OnDelete:CASCADE"`
}

// Category classifies services for discovery and user preferences.
type Category struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"uniqueIndex;size:64;not null"`
}
