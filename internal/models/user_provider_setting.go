package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProviderSetting holds per-user credentials and configuration for one
// provider. A provider is usable for a user only when an enabled row
// exists and its settings pass driver validation.
type UserProviderSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID       uint64 `gorm:"not null;uniqueIndex:idx_user_provider_settings_user_code,priority:1"`                  // Owning user ID.
	ProviderCode string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_provider_settings_user_code,priority:2"` // Related provider code.

	Settings datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Driver-specific credentials/config.

	IsEnabled bool `gorm:"not null;default:true"` // Whether the user enabled this provider.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
