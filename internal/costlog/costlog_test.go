package costlog

import (
	"context"
	"testing"

	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/provider"

	"github.com/glebarez/sqlite"
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
	if errMigrate := db.AutoMigrate(&models.CostLogEntry{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func TestLogWritesEntry(t *testing.T) {
	db := openTestDB(t)
	logger := NewLogger(db, nil)
	domainID := uint64(7)

	estimate := provider.Estimate{Units: 3, UnitName: "serp_checks", Cents: 3}
	if errLog := logger.Log(context.Background(), 1, &domainID, "serp.rank_check", "dataforseo", estimate, map[string]any{"batch": 3}); errLog != nil {
		t.Fatalf("log: %v", errLog)
	}

	var entry models.CostLogEntry
	if errFind := db.Take(&entry).Error; errFind != nil {
		t.Fatalf("load entry: %v", errFind)
	}
	if entry.Units != 3 || entry.UnitName != "serp_checks" || entry.EstimatedCostCents != 3 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.DomainID == nil || *entry.DomainID != domainID {
		t.Fatalf("expected domain id %d, got %v", domainID, entry.DomainID)
	}
}

func TestLogDefaults(t *testing.T) {
	db := openTestDB(t)
	logger := NewLogger(db, nil)

	estimate := provider.Estimate{Units: -5}
	if errLog := logger.Log(context.Background(), 1, nil, "crawl.http_basic", "http_basic", estimate, nil); errLog != nil {
		t.Fatalf("log: %v", errLog)
	}

	var entry models.CostLogEntry
	if errFind := db.Take(&entry).Error; errFind != nil {
		t.Fatalf("load entry: %v", errFind)
	}
	if entry.Units != 0 {
		t.Fatalf("negative units must clamp to 0, got %d", entry.Units)
	}
	if entry.UnitName != "requests" {
		t.Fatalf("empty unit name must default to requests, got %q", entry.UnitName)
	}
}
