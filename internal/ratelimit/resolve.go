package ratelimit

import (
	"context"
	"errors"

	"github.com/rankpilot/rankpilot/internal/models"

	"gorm.io/gorm"
)

// ResolveLimit resolves the effective per-second task limit for a user,
// walking subscription plan, then the user's own override, then the
// settings default. The first positive limit wins; 0 means unlimited.
func ResolveLimit(ctx context.Context, db *gorm.DB, userID uint64) (Decision, error) {
	if db == nil || userID == 0 {
		return Decision{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	planLimit, errPlan := loadPlanRateLimit(ctx, db, userID)
	if errPlan != nil {
		return Decision{}, errPlan
	}
	if planLimit > 0 {
		return Decision{Limit: planLimit}, nil
	}

	userLimit, errUser := loadUserRateLimit(ctx, db, userID)
	if errUser != nil {
		return Decision{}, errUser
	}
	if userLimit > 0 {
		return Decision{Limit: userLimit}, nil
	}

	if settingsLimit := DefaultSettingsLimit(); settingsLimit > 0 {
		return Decision{Limit: settingsLimit}, nil
	}
	return Decision{}, nil
}

func loadPlanRateLimit(ctx context.Context, db *gorm.DB, userID uint64) (int, error) {
	type planRow struct {
		RateLimit int
	}
	var row planRow
	errFind := db.WithContext(ctx).
		Model(&models.Subscription{}).
		Select("plans.rate_limit").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("subscriptions.user_id = ? AND subscriptions.status = ?", userID, models.SubscriptionStatusActive).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errFind
	}
	return row.RateLimit, nil
}

func loadUserRateLimit(ctx context.Context, db *gorm.DB, userID uint64) (int, error) {
	type userRow struct {
		RateLimit int
	}
	var row userRow
	errFind := db.WithContext(ctx).
		Model(&models.User{}).
		Select("rate_limit").
		Where("id = ?", userID).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errFind
	}
	return row.RateLimit, nil
}
