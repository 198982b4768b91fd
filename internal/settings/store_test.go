package settings

import (
	"encoding/json"
	"testing"

	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func bindTestDB(t *testing.T) *gorm.DB {
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
	if errMigrate := db.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	Bind(db)
	return db
}

func TestSetAndDBConfigValue(t *testing.T) {
	bindTestDB(t)

	if errSet := Set(RateLimitKey, 5); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}

	raw, ok := DBConfigValue(RateLimitKey)
	if !ok {
		t.Fatal("expected value after set")
	}
	var limit int
	if errUnmarshal := json.Unmarshal(raw, &limit); errUnmarshal != nil {
		t.Fatalf("decode: %v", errUnmarshal)
	}
	if limit != 5 {
		t.Fatalf("expected 5, got %d", limit)
	}

	if _, ok := DBConfigValue("MISSING_KEY"); ok {
		t.Fatal("missing key must not resolve")
	}
}

func TestSetOverwritesExistingKey(t *testing.T) {
	db := bindTestDB(t)

	if errSet := Set(SiteNameKey, "First"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if errSet := Set(SiteNameKey, "Second"); errSet != nil {
		t.Fatalf("set again: %v", errSet)
	}

	var count int64
	if errCount := db.Model(&models.Setting{}).Where("key = ?", SiteNameKey).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected a single row per key, got %d", count)
	}

	raw, ok := DBConfigValue(SiteNameKey)
	if !ok {
		t.Fatal("expected value")
	}
	var name string
	if errUnmarshal := json.Unmarshal(raw, &name); errUnmarshal != nil {
		t.Fatalf("decode: %v", errUnmarshal)
	}
	if name != "Second" {
		t.Fatalf("expected latest value, got %q", name)
	}
}

func TestDefaultPlanCodeValue(t *testing.T) {
	bindTestDB(t)

	if got := DefaultPlanCodeValue(); got != DefaultPlanCode {
		t.Fatalf("expected fallback %q, got %q", DefaultPlanCode, got)
	}

	if errSet := Set(DefaultPlanCodeKey, "pro"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if got := DefaultPlanCodeValue(); got != "pro" {
		t.Fatalf("expected configured code, got %q", got)
	}
}
