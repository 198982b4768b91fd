package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/rankpilot/rankpilot/internal/costlog"
	"github.com/rankpilot/rankpilot/internal/ledger"
	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/provider"
	"github.com/rankpilot/rankpilot/internal/quota"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// recordingDriver counts executions and returns a canned payload.
type recordingDriver struct {
	estimate provider.Estimate
	payload  map[string]any
	executed int
}

func (d *recordingDriver) EstimateCost(params provider.Params) provider.Estimate {
	if keywords, ok := params["keywords"].([]string); ok {
		return provider.Estimate{Units: int64(len(keywords)), UnitName: "serp_checks", Cents: int64(len(keywords))}
	}
	return d.estimate
}

func (d *recordingDriver) Execute(ctx context.Context, settings, params provider.Params) (map[string]any, error) {
	d.executed++
	out := map[string]any{}
	for k, v := range d.payload {
		out[k] = v
	}
	return out, nil
}

func (d *recordingDriver) ValidateSettings(settings provider.Params) error { return nil }

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
		&models.Keyword{},
		&models.RankResult{},
		&models.Provider{},
		&models.UserProviderSetting{},
		&models.DomainProviderPreference{},
		&models.UsageCounter{},
		&models.UsageEvent{},
		&models.CostLogEntry{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

type fixture struct {
	db      *gorm.DB
	manager *Manager
	user    models.User
	domain  models.Domain
	driver  *recordingDriver
}

func newFixture(t *testing.T, limits string, driverCode, category string) *fixture {
	t.Helper()
	db := openTestDB(t)

	plan := models.Plan{Code: "starter", Name: "Starter", Limits: datatypes.JSON(limits), IsEnabled: true}
	if errCreate := db.Create(&plan).Error; errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	user := models.User{Email: "a@example.com", Password: "x", Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	domain := models.Domain{UserID: user.ID, Host: "example.com", Status: models.DomainStatusActive}
	if errCreate := db.Create(&domain).Error; errCreate != nil {
		t.Fatalf("seed domain: %v", errCreate)
	}

	catalogRow := models.Provider{Code: driverCode, Category: category, Name: driverCode, IsActive: true}
	if errCreate := db.Create(&catalogRow).Error; errCreate != nil {
		t.Fatalf("seed provider: %v", errCreate)
	}
	setting := models.UserProviderSetting{
		UserID:       user.ID,
		ProviderCode: driverCode,
		Settings:     datatypes.JSON(`{}`),
		IsEnabled:    true,
	}
	if errCreate := db.Create(&setting).Error; errCreate != nil {
		t.Fatalf("seed setting: %v", errCreate)
	}

	driver := &recordingDriver{
		estimate: provider.Estimate{Units: 1, UnitName: "requests", Cents: 2},
		payload:  map[string]any{"ok": true},
	}
	drivers := provider.NewDriverRegistryWith(map[string]provider.Driver{driverCode: driver})
	catalog := provider.NewCatalog(db)
	resolver := provider.NewResolver(catalog, drivers)
	engine := quota.NewEngine(db, ledger.New(db, nil), "starter", nil)
	costs := costlog.NewLogger(db, nil)
	manager := NewManager(db, engine, resolver, drivers, costs, nil, nil)

	return &fixture{db: db, manager: manager, user: user, domain: domain, driver: driver}
}

func TestRunSpeedCheckConsumesQuotaAndLogsCost(t *testing.T) {
	f := newFixture(t, `{"speed.checks_per_day": 5}`, "google_psi", "speed")
	ctx := context.Background()

	result, errRun := f.manager.RunSpeedCheck(ctx, f.user.ID, f.domain.ID, "mobile")
	if errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if result["provider_code"] != "google_psi" {
		t.Fatalf("expected provider code in result, got %v", result["provider_code"])
	}
	if f.driver.executed != 1 {
		t.Fatalf("expected 1 execution, got %d", f.driver.executed)
	}

	var cost models.CostLogEntry
	if errFind := f.db.Take(&cost).Error; errFind != nil {
		t.Fatalf("expected cost row: %v", errFind)
	}
	if cost.TaskType != TaskSpeedPageSpeed || cost.Units != 1 || cost.EstimatedCostCents != 2 {
		t.Fatalf("unexpected cost row: %+v", cost)
	}

	var counter models.UsageCounter
	if errFind := f.db.Where("metric_key = ?", "speed.checks").Take(&counter).Error; errFind != nil {
		t.Fatalf("expected usage counter: %v", errFind)
	}
	if counter.Used != 1 || counter.PeriodType != models.PeriodTypeDay {
		t.Fatalf("unexpected counter: %+v", counter)
	}
}

func TestRunTaskDeniedByQuotaSkipsExecution(t *testing.T) {
	f := newFixture(t, `{"speed.checks_per_day": 0}`, "google_psi", "speed")

	_, errRun := f.manager.RunSpeedCheck(context.Background(), f.user.ID, f.domain.ID, "")
	var exceeded *quota.ExceededError
	if !errors.As(errRun, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", errRun)
	}
	if f.driver.executed != 0 {
		t.Fatal("driver must not execute on quota denial")
	}

	var costs int64
	if errCount := f.db.Model(&models.CostLogEntry{}).Count(&costs).Error; errCount != nil {
		t.Fatalf("count costs: %v", errCount)
	}
	if costs != 0 {
		t.Fatalf("denied task must not log cost, found %d rows", costs)
	}
}

func TestRunTaskWithoutProviderFailsBeforeExecution(t *testing.T) {
	f := newFixture(t, `{"crawl.requests_per_day": 5}`, "google_psi", "speed")

	_, errRun := f.manager.RunHTTPBasicCrawl(context.Background(), f.user.ID, f.domain.ID)
	var noProvider *NoProviderError
	if !errors.As(errRun, &noProvider) {
		t.Fatalf("expected NoProviderError, got %v", errRun)
	}
	if noProvider.TaskType != TaskCrawlHTTPBasic {
		t.Fatalf("unexpected task type %q", noProvider.TaskType)
	}
	if f.driver.executed != 0 {
		t.Fatal("driver must not execute without a resolved provider")
	}

	var counters int64
	if errCount := f.db.Model(&models.UsageCounter{}).Count(&counters).Error; errCount != nil {
		t.Fatalf("count counters: %v", errCount)
	}
	if counters != 0 {
		t.Fatalf("failed task must not consume quota, found %d counters", counters)
	}
}

func TestRunSerpRankCheckBatchesCostAndQuota(t *testing.T) {
	f := newFixture(t, `{"serp.checks_per_month": 10}`, "dataforseo", "serp")
	ctx := context.Background()

	phrases := []string{"seo tools", "rank tracker", "backlink checker"}
	for _, phrase := range phrases {
		keyword := models.Keyword{DomainID: f.domain.ID, Phrase: phrase, IsActive: true}
		if errCreate := f.db.Create(&keyword).Error; errCreate != nil {
			t.Fatalf("seed keyword: %v", errCreate)
		}
	}
	f.driver.payload = map[string]any{
		"positions": map[string]any{
			"seo tools":    float64(3),
			"rank tracker": float64(12),
		},
	}

	if _, errRun := f.manager.RunSerpRankCheck(ctx, f.user.ID, f.domain.ID); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	var costs []models.CostLogEntry
	if errFind := f.db.Find(&costs).Error; errFind != nil {
		t.Fatalf("load costs: %v", errFind)
	}
	if len(costs) != 1 {
		t.Fatalf("batch must log exactly one cost row, got %d", len(costs))
	}
	if costs[0].Units != 3 || costs[0].UnitName != "serp_checks" {
		t.Fatalf("unexpected cost aggregation: %+v", costs[0])
	}

	var counter models.UsageCounter
	if errFind := f.db.Where("metric_key = ?", "serp.checks").Take(&counter).Error; errFind != nil {
		t.Fatalf("expected serp counter: %v", errFind)
	}
	if counter.Used != 3 {
		t.Fatalf("expected batch consume of 3, got %d", counter.Used)
	}

	var results []models.RankResult
	if errFind := f.db.Order("keyword_id ASC").Find(&results).Error; errFind != nil {
		t.Fatalf("load results: %v", errFind)
	}
	if len(results) != 3 {
		t.Fatalf("expected one result per keyword, got %d", len(results))
	}
	if results[0].Position != 3 || results[1].Position != 12 || results[2].Position != 0 {
		t.Fatalf("unexpected positions: %+v", results)
	}
}

func TestRunSerpRankCheckOverBudgetDeniesWholeBatch(t *testing.T) {
	f := newFixture(t, `{"serp.checks_per_month": 2}`, "dataforseo", "serp")

	for _, phrase := range []string{"a", "b", "c"} {
		keyword := models.Keyword{DomainID: f.domain.ID, Phrase: phrase, IsActive: true}
		if errCreate := f.db.Create(&keyword).Error; errCreate != nil {
			t.Fatalf("seed keyword: %v", errCreate)
		}
	}

	_, errRun := f.manager.RunSerpRankCheck(context.Background(), f.user.ID, f.domain.ID)
	var exceeded *quota.ExceededError
	if !errors.As(errRun, &exceeded) {
		t.Fatalf("expected ExceededError for oversized batch, got %v", errRun)
	}
	if f.driver.executed != 0 {
		t.Fatal("driver must not execute when the batch exceeds quota")
	}
}

func TestRunTaskRejectsForeignDomain(t *testing.T) {
	f := newFixture(t, `{"speed.checks_per_day": 5}`, "google_psi", "speed")

	other := models.User{Email: "b@example.com", Password: "x", Active: true}
	if errCreate := f.db.Create(&other).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}

	if _, errRun := f.manager.RunSpeedCheck(context.Background(), other.ID, f.domain.ID, ""); errRun == nil {
		t.Fatal("expected error for foreign domain")
	}
	if f.driver.executed != 0 {
		t.Fatal("driver must not execute for foreign domain")
	}
}
