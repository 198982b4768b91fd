package models

import "time"

// RankResult records one observed search position for a keyword.
// Position 0 means the keyword was not found in the checked range.
type RankResult struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	KeywordID uint64  `gorm:"not null;index"`       // Related keyword ID.
	Keyword   Keyword `gorm:"foreignKey:KeywordID"` // Related keyword record.

	Position     int    `gorm:"not null;default:0"`        // Observed position; lower is better.
	ProviderCode string `gorm:"type:varchar(64);not null"` // Provider that produced the result.

	CheckedAt time.Time `gorm:"not null;index"` // When the position was observed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
