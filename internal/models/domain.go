package models

import "time"

// DomainStatus represents the tracking state of a domain.
type DomainStatus string

// DomainStatus constants define domain tracking states.
const (
	// DomainStatusActive marks a domain counted against the active-domain cap.
	DomainStatusActive DomainStatus = "active"
	// DomainStatusPaused marks a domain excluded from tracking and caps.
	DomainStatusPaused DomainStatus = "paused"
	// DomainStatusArchived marks a domain kept for history only.
	DomainStatusArchived DomainStatus = "archived"
)

// Domain represents a tracked website owned by a user.
type Domain struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	Host string `gorm:"type:varchar(255);not null"` // Hostname, e.g. example.com.

	Status DomainStatus `gorm:"type:varchar(32);not null;default:'active';index"` // Tracking state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
