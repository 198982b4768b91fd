package models

import (
	"time"

	"gorm.io/datatypes"
)

// CostLogEntry records the estimated cost of one executed task. Batched
// operations write a single aggregated row. Append-only.
type CostLogEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64  `gorm:"not null;index"` // Acting user ID.
	DomainID *uint64 `gorm:"index"`          // Related domain, when the task targeted one.

	TaskType     string `gorm:"type:varchar(128);not null"` // Executed task type.
	ProviderCode string `gorm:"type:varchar(64);not null"`  // Provider that handled the task.

	Units              int64  `gorm:"not null;default:0"`                           // Consumed provider units.
	UnitName           string `gorm:"type:varchar(64);not null;default:'requests'"` // Unit label.
	EstimatedCostCents int64  `gorm:"not null;default:0"`                           // Estimated cost in cents.

	Context datatypes.JSON `gorm:"type:jsonb"` // Caller-supplied context for aggregation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
