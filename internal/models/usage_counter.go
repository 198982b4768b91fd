package models

import "time"

// PeriodType identifies the window a usage counter is bucketed by.
type PeriodType string

// PeriodType constants define counter bucketing windows.
const (
	// PeriodTypeDay buckets usage by UTC calendar day.
	PeriodTypeDay PeriodType = "day"
	// PeriodTypeMonth buckets usage by UTC calendar month.
	PeriodTypeMonth PeriodType = "month"
)

// UsageCounter holds the aggregate consumption for one (user, period,
// metric) tuple. Exactly one row exists per tuple; it is created on first
// increment and only ever incremented afterwards. Old periods remain as
// history.
type UsageCounter struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64     `gorm:"not null;uniqueIndex:idx_usage_counters_bucket,priority:1"`                   // Owning user ID.
	PeriodType PeriodType `gorm:"type:varchar(16);not null;uniqueIndex:idx_usage_counters_bucket,priority:2"`  // Bucket window type.
	PeriodKey  string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_usage_counters_bucket,priority:3"`  // Bucket key, e.g. 2024-05 or 2024-05-17.
	MetricKey  string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_usage_counters_bucket,priority:4"` // Consumption metric.

	Used int64 `gorm:"not null;default:0"` // Consumed amount within the bucket.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
