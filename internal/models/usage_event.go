package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageEvent is an immutable audit record written once per consumption.
// Rows are never mutated or deleted.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64 `gorm:"not null;index"`             // Consuming user ID.
	MetricKey string `gorm:"type:varchar(128);not null"` // Consumption metric.
	Amount    int64  `gorm:"not null;default:1"`         // Consumed amount.

	DomainID *uint64 `gorm:"index"` // Related domain, when the action targeted one.

	Context datatypes.JSON `gorm:"type:jsonb"` // Caller-supplied context for audit.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
