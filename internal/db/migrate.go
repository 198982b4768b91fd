package db

import (
	"errors"
	"fmt"

	"github.com/rankpilot/rankpilot/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs schema migrations and seeds the rows the engine expects:
// the default plan and the provider catalog.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Domain{},
		&models.Keyword{},
		&models.RankResult{},
		&models.UsageCounter{},
		&models.UsageEvent{},
		&models.Provider{},
		&models.UserProviderSetting{},
		&models.DomainProviderPreference{},
		&models.CostLogEntry{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultPlans(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureProviderCatalog(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureDefaultPlans seeds the starter and pro plans when absent.
func ensureDefaultPlans(conn *gorm.DB) error {
	plans := []models.Plan{
		{
			Code:       "starter",
			Name:       "Starter",
			MonthPrice: 0,
			Limits: datatypes.JSON([]byte(`{
				"audits.runs_per_day": 3,
				"audits.runs_per_month": 30,
				"speed.checks_per_day": 10,
				"crawl.requests_per_day": 25,
				"backlinks.fetches_per_month": 5,
				"serp.checks_per_month": 100,
				"google.sync_now_per_day": 2,
				"reports.pdf_per_month": false,
				"domains.max_active": 1
			}`)),
			RateLimit: 1,
			SortOrder: 0,
			IsEnabled: true,
		},
		{
			Code:       "pro",
			Name:       "Pro",
			MonthPrice: 49,
			Limits: datatypes.JSON([]byte(`{
				"audits.runs_per_day": 25,
				"audits.runs_per_month": 400,
				"speed.checks_per_day": 100,
				"crawl.requests_per_day": 500,
				"backlinks.fetches_per_month": 100,
				"serp.checks_per_month": 5000,
				"google.sync_now_per_day": 10,
				"reports.pdf_per_month": true,
				"domains.max_active": 10
			}`)),
			RateLimit: 5,
			SortOrder: 1,
			IsEnabled: true,
		},
	}
	for _, plan := range plans {
		var existing models.Plan
		errFind := conn.Where("code = ?", plan.Code).Take(&existing).Error
		if errFind == nil {
			continue
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("db: check plan %s: %w", plan.Code, errFind)
		}
		if errCreate := conn.Create(&plan).Error; errCreate != nil {
			return fmt.Errorf("db: seed plan %s: %w", plan.Code, errCreate)
		}
	}
	return nil
}

// ensureProviderCatalog seeds the known providers when absent. Provider
// id order doubles as the system-default resolution order per category.
func ensureProviderCatalog(conn *gorm.DB) error {
	providers := []models.Provider{
		{Code: "google_psi", Category: "speed", Name: "Google PageSpeed Insights", IsActive: true},
		{Code: "http_basic", Category: "crawl", Name: "Basic HTTP Crawler", IsActive: true},
		{Code: "dataforseo", Category: "backlinks", Name: "DataForSEO Backlinks", IsActive: true},
		{Code: "gsc_fallback", Category: "serp", Name: "Search Console Rankings", IsActive: true},
	}
	for _, row := range providers {
		var existing models.Provider
		errFind := conn.Where("code = ?", row.Code).Take(&existing).Error
		if errFind == nil {
			continue
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("db: check provider %s: %w", row.Code, errFind)
		}
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: seed provider %s: %w", row.Code, errCreate)
		}
	}
	return nil
}
