package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rankpilot/rankpilot/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger appends consumption events and maintains per-period aggregate
// counters. The counter row is the only mutable shared state; it is
// mutated exclusively through the atomic-increment path in Increment.
type Ledger struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// New constructs a Ledger. A nil nowFn defaults to the wall clock.
func New(db *gorm.DB, nowFn func() time.Time) *Ledger {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Ledger{db: db, nowFn: nowFn}
}

// PeriodKey returns the bucket key for the given period type at t,
// YYYY-MM for months and YYYY-MM-DD for days, always in UTC.
func PeriodKey(periodType models.PeriodType, t time.Time) string {
	t = t.UTC()
	if periodType == models.PeriodTypeDay {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01")
}

// PeriodReset returns when the current bucket for the period type rolls
// over: the next UTC midnight for days, the first of the next month for
// months.
func PeriodReset(periodType models.PeriodType, t time.Time) time.Time {
	t = t.UTC()
	if periodType == models.PeriodTypeDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// Used returns the consumed amount for the user's current-period counter,
// defaulting to 0 when no row exists yet.
func (l *Ledger) Used(ctx context.Context, userID uint64, metricKey string, periodType models.PeriodType) (int64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("ledger: not initialized")
	}
	var row models.UsageCounter
	errFind := l.db.WithContext(ctx).
		Where("user_id = ? AND period_type = ? AND period_key = ? AND metric_key = ?",
			userID, periodType, PeriodKey(periodType, l.nowFn()), metricKey).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger: read counter: %w", errFind)
	}
	return row.Used, nil
}

// Increment adds amount to the current-period counter and appends one
// usage event, committing both in a single transaction. The counter
// update uses a database-level atomic increment so concurrent callers on
// the same bucket never lose updates.
func (l *Ledger) Increment(ctx context.Context, userID uint64, metricKey string, periodType models.PeriodType, amount int64, domainID *uint64, eventContext map[string]any) error {
	if l == nil || l.db == nil {
		return errors.New("ledger: not initialized")
	}
	if amount <= 0 {
		return fmt.Errorf("ledger: amount must be positive, got %d", amount)
	}

	now := l.nowFn().UTC()
	counter := models.UsageCounter{
		UserID:     userID,
		PeriodType: periodType,
		PeriodKey:  PeriodKey(periodType, now),
		MetricKey:  metricKey,
		Used:       amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var contextJSON datatypes.JSON
	if len(eventContext) > 0 {
		encoded, errMarshal := json.Marshal(eventContext)
		if errMarshal != nil {
			return fmt.Errorf("ledger: marshal event context: %w", errMarshal)
		}
		contextJSON = datatypes.JSON(encoded)
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUpsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "period_type"},
				{Name: "period_key"},
				{Name: "metric_key"},
			},
			DoUpdates: clause.Assignments(map[string]any{
				"used":       gorm.Expr("used + ?", amount),
				"updated_at": now,
			}),
		}).Create(&counter).Error; errUpsert != nil {
			return fmt.Errorf("ledger: upsert counter: %w", errUpsert)
		}

		event := models.UsageEvent{
			UserID:    userID,
			MetricKey: metricKey,
			Amount:    amount,
			DomainID:  domainID,
			Context:   contextJSON,
			CreatedAt: now,
		}
		if errCreate := tx.Create(&event).Error; errCreate != nil {
			return fmt.Errorf("ledger: append event: %w", errCreate)
		}
		return nil
	})
}
