package models

import "time"

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

// SubscriptionStatus constants define subscription lifecycle states.
const (
	// SubscriptionStatusActive marks a subscription in good standing.
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusPastDue marks a subscription with a failed renewal.
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
	// SubscriptionStatusCanceled marks a subscription canceled by the user.
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	// SubscriptionStatusExpired marks a subscription past its final period.
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// Subscription links a user to a plan for a billing window.
// Rows are never deleted, only transitioned to canceled or expired.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID; one subscription per user.
	User   User   `gorm:"foreignKey:UserID"`    // Owning user record.

	PlanID uint64 `gorm:"not null;index"`    // Related plan ID.
	Plan   Plan   `gorm:"foreignKey:PlanID"` // Related plan record.

	Status SubscriptionStatus `gorm:"type:varchar(32);not null;default:'active'"` // Lifecycle state.

	CurrentPeriodStart time.Time `gorm:"not null"` // Billing window start.
	CurrentPeriodEnd   time.Time `gorm:"not null"` // Billing window end; monthly reset boundary.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsActive reports whether the subscription grants plan limits.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}
