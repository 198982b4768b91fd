package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rankpilot/rankpilot/internal/ledger"
	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, errDB := db.DB()
	if errDB != nil {
		t.Fatalf("db handle: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Domain{},
		&models.UsageCounter{},
		&models.UsageEvent{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func seedPlan(t *testing.T, db *gorm.DB, code string, limits string) models.Plan {
	t.Helper()
	plan := models.Plan{
		Code:      code,
		Name:      code,
		Limits:    datatypes.JSON(limits),
		IsEnabled: true,
	}
	if errCreate := db.Create(&plan).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	return plan
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, Password: "x", Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return user
}

func newTestEngine(db *gorm.DB, nowFn func() time.Time) *Engine {
	return NewEngine(db, ledger.New(db, nowFn), "starter", nowFn)
}

func TestGetLimitCreatesDefaultSubscription(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"speed.checks_per_day": 3}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)

	limit, errLimit := engine.GetLimit(context.Background(), user.ID, KeySpeedChecksPerDay)
	if errLimit != nil {
		t.Fatalf("get limit: %v", errLimit)
	}
	if limit == nil || *limit != 3 {
		t.Fatalf("expected limit 3, got %v", limit)
	}

	var sub models.Subscription
	if errFind := db.Where("user_id = ?", user.ID).Take(&sub).Error; errFind != nil {
		t.Fatalf("expected subscription to be created: %v", errFind)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected active subscription, got %s", sub.Status)
	}
}

func TestGetLimitInactiveSubscriptionIsUnlimited(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db, "starter", `{"speed.checks_per_day": 3}`)
	user := seedUser(t, db, "a@example.com")
	now := time.Now().UTC()
	sub := models.Subscription{
		UserID:             user.ID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionStatusCanceled,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	if errCreate := db.Create(&sub).Error; errCreate != nil {
		t.Fatalf("seed subscription: %v", errCreate)
	}
	engine := newTestEngine(db, nil)

	limit, errLimit := engine.GetLimit(context.Background(), user.ID, KeySpeedChecksPerDay)
	if errLimit != nil {
		t.Fatalf("get limit: %v", errLimit)
	}
	if limit != nil {
		t.Fatalf("expected unlimited for inactive subscription, got %d", *limit)
	}
}

func TestAssertAllowedBoundary(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"audits.runs_per_day": 2}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if errAssert := engine.AssertAllowed(ctx, user.ID, KeyAuditsPerDay, 1); errAssert != nil {
			t.Fatalf("assert %d: %v", i, errAssert)
		}
		c := Classify(KeyAuditsPerDay)
		if errConsume := engine.Consume(ctx, user.ID, c.MetricKey, 1, c.PeriodType, nil, nil); errConsume != nil {
			t.Fatalf("consume %d: %v", i, errConsume)
		}
	}

	errAssert := engine.AssertAllowed(ctx, user.ID, KeyAuditsPerDay, 1)
	var exceeded *ExceededError
	if !errors.As(errAssert, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", errAssert)
	}
	if exceeded.QuotaKey != KeyAuditsPerDay || exceeded.Limit != 2 || exceeded.Used != 2 {
		t.Fatalf("unexpected denial details: %+v", exceeded)
	}
	if exceeded.ResetAt.IsZero() {
		t.Fatal("daily denial must carry a reset time")
	}
}

func TestAssertAllowedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"audits.runs_per_day": 5}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if errAssert := engine.AssertAllowed(ctx, user.ID, KeyAuditsPerDay, 1); errAssert != nil {
			t.Fatalf("assert %d: %v", i, errAssert)
		}
	}

	var counters int64
	if errCount := db.Model(&models.UsageCounter{}).Count(&counters).Error; errCount != nil {
		t.Fatalf("count counters: %v", errCount)
	}
	if counters != 0 {
		t.Fatalf("AssertAllowed must not write counters, found %d", counters)
	}
}

func TestDailyRollover(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"audits.runs_per_day": 2}`)
	user := seedUser(t, db, "a@example.com")
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(db, func() time.Time { return now })
	ctx := context.Background()

	c := Classify(KeyAuditsPerDay)
	for i := 0; i < 2; i++ {
		if errConsume := engine.Consume(ctx, user.ID, c.MetricKey, 1, c.PeriodType, nil, nil); errConsume != nil {
			t.Fatalf("consume %d: %v", i, errConsume)
		}
	}
	if errAssert := engine.AssertAllowed(ctx, user.ID, KeyAuditsPerDay, 1); errAssert == nil {
		t.Fatal("expected denial at the daily limit")
	}

	now = now.AddDate(0, 0, 1)
	if errAssert := engine.AssertAllowed(ctx, user.ID, KeyAuditsPerDay, 1); errAssert != nil {
		t.Fatalf("expected fresh allowance after rollover: %v", errAssert)
	}
}

func TestBatchAmountChecksWholeBatch(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"serp.checks_per_month": 10}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)
	ctx := context.Background()

	c := Classify(KeySerpChecksPerMonth)
	if errConsume := engine.Consume(ctx, user.ID, c.MetricKey, 8, c.PeriodType, nil, nil); errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}

	if errAssert := engine.AssertAllowed(ctx, user.ID, KeySerpChecksPerMonth, 2); errAssert != nil {
		t.Fatalf("batch of 2 should fit: %v", errAssert)
	}
	if errAssert := engine.AssertAllowed(ctx, user.ID, KeySerpChecksPerMonth, 3); errAssert == nil {
		t.Fatal("batch of 3 must be denied")
	}
}

func TestDomainCapCountsLiveDomains(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"domains.max_active": 1}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)
	ctx := context.Background()

	// Stale ledger rows for the cap key must not influence the check.
	if errConsume := engine.Consume(ctx, user.ID, KeyMaxActiveDomains, 5, models.PeriodTypeMonth, nil, nil); errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}
	if errAssert := engine.AssertAllowed(ctx, user.ID, KeyMaxActiveDomains, 1); errAssert != nil {
		t.Fatalf("no active domains yet, expected allow: %v", errAssert)
	}

	domain := models.Domain{UserID: user.ID, Host: "example.com", Status: models.DomainStatusActive}
	if errCreate := db.Create(&domain).Error; errCreate != nil {
		t.Fatalf("seed domain: %v", errCreate)
	}

	errAssert := engine.AssertAllowed(ctx, user.ID, KeyMaxActiveDomains, 1)
	var exceeded *ExceededError
	if !errors.As(errAssert, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", errAssert)
	}
	if !exceeded.ResetAt.IsZero() {
		t.Fatal("standing cap denial must not carry a reset time")
	}

	if errPause := db.Model(&models.Domain{}).Where("id = ?", domain.ID).
		Update("status", models.DomainStatusPaused).Error; errPause != nil {
		t.Fatalf("pause domain: %v", errPause)
	}
	if errAssert := engine.AssertAllowed(ctx, user.ID, KeyMaxActiveDomains, 1); errAssert != nil {
		t.Fatalf("paused domains must free the cap: %v", errAssert)
	}
}

func TestBoolFlagLimits(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"reports.pdf_per_month": false, "google.sync_now_per_day": true}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)
	ctx := context.Background()

	errAssert := engine.AssertAllowed(ctx, user.ID, KeyPDFReportsPerMonth, 1)
	var exceeded *ExceededError
	if !errors.As(errAssert, &exceeded) {
		t.Fatalf("false flag must deny, got %v", errAssert)
	}
	if exceeded.Limit != 0 {
		t.Fatalf("false flag must report limit 0, got %d", exceeded.Limit)
	}

	if errAllow := engine.AssertAllowed(ctx, user.ID, KeyGoogleSyncNowPerDay, 1); errAllow != nil {
		t.Fatalf("true flag must allow: %v", errAllow)
	}
}

func TestAbsentKeyIsUnlimited(t *testing.T) {
	db := openTestDB(t)
	seedPlan(t, db, "starter", `{"audits.runs_per_day": 1}`)
	user := seedUser(t, db, "a@example.com")
	engine := newTestEngine(db, nil)

	if errAssert := engine.AssertAllowed(context.Background(), user.ID, KeyBacklinksFetchesPerMonth, 100); errAssert != nil {
		t.Fatalf("absent key must be unlimited: %v", errAssert)
	}
}

func TestMonthlyDenialResetAtCalendarRollover(t *testing.T) {
	db := openTestDB(t)
	plan := seedPlan(t, db, "starter", `{"serp.checks_per_month": 1}`)
	user := seedUser(t, db, "a@example.com")
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	sub := models.Subscription{
		UserID:             user.ID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
	}
	if errCreate := db.Create(&sub).Error; errCreate != nil {
		t.Fatalf("seed subscription: %v", errCreate)
	}
	engine := newTestEngine(db, func() time.Time { return now })
	ctx := context.Background()

	c := Classify(KeySerpChecksPerMonth)
	if errConsume := engine.Consume(ctx, user.ID, c.MetricKey, 1, c.PeriodType, nil, nil); errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}

	errAssert := engine.AssertAllowed(ctx, user.ID, KeySerpChecksPerMonth, 1)
	var exceeded *ExceededError
	if !errors.As(errAssert, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", errAssert)
	}

	// The counter buckets by calendar month, so the denial reports the
	// month rollover even when the billing window is anchored mid-month.
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !exceeded.ResetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, exceeded.ResetAt)
	}
}
