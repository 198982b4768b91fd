package models

import (
	"time"

	"gorm.io/datatypes"
)

// DomainProviderPreference pins a preferred provider and ordered fallback
// codes for one task type on one domain.
type DomainProviderPreference struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DomainID uint64 `gorm:"not null;uniqueIndex:idx_domain_provider_prefs_domain_task,priority:1"`                   // Related domain ID.
	TaskType string `gorm:"type:varchar(128);not null;uniqueIndex:idx_domain_provider_prefs_domain_task,priority:2"` // Task type, e.g. speed.pagespeed.

	ProviderCode string `gorm:"type:varchar(64);not null"` // Primary provider code.

	Fallbacks datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Ordered fallback provider codes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
