package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rankpilot/rankpilot/internal/ledger"
	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ExceededError signals that an action would push usage past the plan
// limit. It is the only expected failure from AssertAllowed and carries
// enough data for callers to render a specific limit/reset message. It is
// never a system error.
type ExceededError struct {
	QuotaKey string    // Checked quota key.
	Limit    int64     // Applicable plan limit.
	Used     int64     // Usage already recorded for the period.
	ResetAt  time.Time // When the counter rolls over; zero for standing caps.
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: used %d of %d", e.QuotaKey, e.Used, e.Limit)
}

// Engine resolves plan limits and enforces them against the usage ledger.
type Engine struct {
	db              *gorm.DB
	ledger          *ledger.Ledger
	nowFn           func() time.Time
	defaultPlanCode string
}

// NewEngine constructs an Engine. A nil nowFn defaults to the wall clock.
// defaultPlanCode names the plan assigned when a user has no subscription
// at the time of their first quota check.
func NewEngine(db *gorm.DB, l *ledger.Ledger, defaultPlanCode string, nowFn func() time.Time) *Engine {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{db: db, ledger: l, nowFn: nowFn, defaultPlanCode: defaultPlanCode}
}

// GetLimit resolves the user's plan limit for a quota key. A nil result
// means unlimited: the subscription is inactive, the key is absent from
// the plan, or the plan flags the feature as unmetered.
func (e *Engine) GetLimit(ctx context.Context, userID uint64, quotaKey string) (*int64, error) {
	sub, errSub := e.ensureSubscription(ctx, userID)
	if errSub != nil {
		return nil, errSub
	}
	if !sub.IsActive() {
		return nil, nil
	}

	var plan models.Plan
	if errFind := e.db.WithContext(ctx).First(&plan, sub.PlanID).Error; errFind != nil {
		return nil, fmt.Errorf("quota: load plan %d: %w", sub.PlanID, errFind)
	}
	return planLimit(plan, quotaKey)
}

// GetUsed reads the current-period counter for a metric, 0 when absent.
func (e *Engine) GetUsed(ctx context.Context, userID uint64, metricKey string, periodType models.PeriodType) (int64, error) {
	return e.ledger.Used(ctx, userID, metricKey, periodType)
}

// AssertAllowed checks whether the user may consume amount units of the
// quota key. It never mutates state: calling it repeatedly with the same
// arguments yields the same decision until an intervening Consume.
// Standing caps (KeyMaxActiveDomains) count live entities instead of the
// ledger. A nil limit always allows.
func (e *Engine) AssertAllowed(ctx context.Context, userID uint64, quotaKey string, amount int64) error {
	if amount <= 0 {
		amount = 1
	}

	limit, errLimit := e.GetLimit(ctx, userID, quotaKey)
	if errLimit != nil {
		return errLimit
	}
	if limit == nil {
		return nil
	}

	if quotaKey == KeyMaxActiveDomains {
		return e.assertDomainCap(ctx, userID, *limit, amount)
	}

	c := Classify(quotaKey)
	used, errUsed := e.GetUsed(ctx, userID, c.MetricKey, c.PeriodType)
	if errUsed != nil {
		return errUsed
	}
	if used+amount > *limit {
		return &ExceededError{
			QuotaKey: quotaKey,
			Limit:    *limit,
			Used:     used,
			ResetAt:  e.resetAt(c.PeriodType),
		}
	}
	return nil
}

// Consume increments the metric counter and appends a usage event in one
// atomic transaction. It performs no limit check; callers gate with
// AssertAllowed first. Storage failures propagate as fatal.
func (e *Engine) Consume(ctx context.Context, userID uint64, metricKey string, amount int64, periodType models.PeriodType, domainID *uint64, eventContext map[string]any) error {
	if amount <= 0 {
		amount = 1
	}
	if periodType == "" {
		periodType = models.PeriodTypeMonth
	}
	return e.ledger.Increment(ctx, userID, metricKey, periodType, amount, domainID, eventContext)
}

// assertDomainCap enforces the active-domain standing cap against the
// live domain count. Stale usage events never influence this check.
func (e *Engine) assertDomainCap(ctx context.Context, userID uint64, limit, amount int64) error {
	var count int64
	if errCount := e.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("user_id = ? AND status = ?", userID, models.DomainStatusActive).
		Count(&count).Error; errCount != nil {
		return fmt.Errorf("quota: count active domains: %w", errCount)
	}
	if count+amount > limit {
		return &ExceededError{QuotaKey: KeyMaxActiveDomains, Limit: limit, Used: count}
	}
	return nil
}

// resetAt computes when the denied counter rolls over: next UTC midnight
// for daily keys, the calendar month rollover for monthly keys. Counters
// bucket by calendar period key, so a subscription window anchored
// mid-month does not move the counter reset; lazily created
// subscriptions start on the 1st and the two boundaries coincide.
func (e *Engine) resetAt(periodType models.PeriodType) time.Time {
	return ledger.PeriodReset(periodType, e.nowFn().UTC())
}

// ensureSubscription loads the user's subscription, creating an active
// one on the default plan at first quota check. Concurrent first checks
// race on the unique user index; the loser re-reads the winner's row.
func (e *Engine) ensureSubscription(ctx context.Context, userID uint64) (*models.Subscription, error) {
	var sub models.Subscription
	errFind := e.db.WithContext(ctx).Where("user_id = ?", userID).Take(&sub).Error
	if errFind == nil {
		return &sub, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("quota: load subscription: %w", errFind)
	}

	var plan models.Plan
	if errPlan := e.db.WithContext(ctx).
		Where("code = ? AND is_enabled = ?", e.defaultPlanCode, true).
		Take(&plan).Error; errPlan != nil {
		return nil, fmt.Errorf("quota: load default plan %s: %w", e.defaultPlanCode, errPlan)
	}

	now := e.nowFn().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	created := models.Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodStart.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if errCreate := e.db.WithContext(ctx).Create(&created).Error; errCreate != nil {
		if isUniqueViolation(errCreate) {
			if errReread := e.db.WithContext(ctx).Where("user_id = ?", userID).Take(&sub).Error; errReread == nil {
				return &sub, nil
			}
		}
		return nil, fmt.Errorf("quota: create subscription: %w", errCreate)
	}
	return &created, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure on
// either supported dialect.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// planLimit decodes the plan's limit for a quota key. Numbers are hard
// caps; booleans are feature flags where false means 0 and true means
// unmetered (nil). Absent keys are unlimited.
func planLimit(plan models.Plan, quotaKey string) (*int64, error) {
	if len(plan.Limits) == 0 {
		return nil, nil
	}
	var limits map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(plan.Limits, &limits); errUnmarshal != nil {
		return nil, fmt.Errorf("quota: decode plan %s limits: %w", plan.Code, errUnmarshal)
	}
	raw, ok := limits[quotaKey]
	if !ok {
		return nil, nil
	}

	var flag bool
	if errBool := json.Unmarshal(raw, &flag); errBool == nil {
		if flag {
			return nil, nil
		}
		zero := int64(0)
		return &zero, nil
	}

	var limit int64
	if errInt := json.Unmarshal(raw, &limit); errInt != nil {
		return nil, fmt.Errorf("quota: plan %s key %s has non-numeric limit", plan.Code, quotaKey)
	}
	return &limit, nil
}
