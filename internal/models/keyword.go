package models

import "time"

// Keyword represents one tracked search phrase on a domain.
type Keyword struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DomainID uint64 `gorm:"not null;index"`      // Owning domain ID.
	Domain   Domain `gorm:"foreignKey:DomainID"` // Owning domain record.

	Phrase string `gorm:"type:varchar(255);not null"` // Search phrase.

	IsActive bool `gorm:"not null;default:true"` // Whether rank checks run for this keyword.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
