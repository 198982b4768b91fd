package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan represents a subscription plan configuration.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code        string  `gorm:"type:varchar(64);not null;uniqueIndex"` // Stable plan code.
	Name        string  `gorm:"type:varchar(255);not null"`            // Plan name.
	MonthPrice  float64 `gorm:"type:decimal(10,2);not null;default:0"` // Monthly price.
	Description string  `gorm:"type:text"`                             // Plan description.

	// Limits maps quota keys to limit values. Integer values are hard
	// caps, boolean values are feature flags (false means unavailable,
	// true means unmetered). Keys absent from the map are unlimited.
	Limits datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`

	RateLimit int `gorm:"not null;default:0"` // Task rate limit per second.
	SortOrder int `gorm:"not null;default:0"` // Display ordering weight.

	IsEnabled bool `gorm:"not null;default:true"` // Whether the plan is active.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
