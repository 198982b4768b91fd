package models

import "time"

// Provider represents one external data or capability source selectable
// per task type, e.g. a PageSpeed API or a backlink-data vendor.
type Provider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key; doubles as system-default ordering.

	Code     string `gorm:"type:varchar(64);not null;uniqueIndex"` // Stable provider code, e.g. google_psi.
	Category string `gorm:"type:varchar(64);not null;index"`       // Capability category, e.g. speed, serp.
	Name     string `gorm:"type:varchar(255);not null"`            // Display name.

	IsActive bool `gorm:"not null;default:true"` // Whether the provider may be resolved.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
