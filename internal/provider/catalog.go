package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rankpilot/rankpilot/internal/models"

	"gorm.io/gorm"
)

// Catalog reads the provider tables: the system provider list, per-user
// settings, and per-domain preferences. All reads are read-mostly;
// configuration changes may race with resolution and staleness is
// acceptable since resolution re-reads on every call.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog constructs a Catalog.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// ActiveByCode returns the active provider with the given code, or nil.
func (c *Catalog) ActiveByCode(ctx context.Context, code string) (*models.Provider, error) {
	var row models.Provider
	errFind := c.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("provider: load %s: %w", code, errFind)
	}
	return &row, nil
}

// ActiveInCategory returns active providers in a category ordered by id,
// the system-default resolution order.
func (c *Catalog) ActiveInCategory(ctx context.Context, category string) ([]models.Provider, error) {
	var rows []models.Provider
	if errFind := c.db.WithContext(ctx).
		Where("category = ? AND is_active = ?", category, true).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("provider: list category %s: %w", category, errFind)
	}
	return rows, nil
}

// EnabledUserSettings returns the user's enabled settings for a provider
// code decoded into params, or nil when absent or disabled.
func (c *Catalog) EnabledUserSettings(ctx context.Context, userID uint64, code string) (Params, error) {
	var row models.UserProviderSetting
	errFind := c.db.WithContext(ctx).
		Where("user_id = ? AND provider_code = ? AND is_enabled = ?", userID, code, true).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("provider: load user settings %s: %w", code, errFind)
	}

	settings := Params{}
	if len(row.Settings) > 0 {
		if errUnmarshal := json.Unmarshal(row.Settings, &settings); errUnmarshal != nil {
			return nil, fmt.Errorf("provider: decode user settings %s: %w", code, errUnmarshal)
		}
	}
	return settings, nil
}

// PreferenceFor returns the domain's provider preference for a task type,
// or nil when the domain declared none.
func (c *Catalog) PreferenceFor(ctx context.Context, domainID uint64, taskType string) (*models.DomainProviderPreference, error) {
	if domainID == 0 {
		return nil, nil
	}
	var row models.DomainProviderPreference
	errFind := c.db.WithContext(ctx).
		Where("domain_id = ? AND task_type = ?", domainID, taskType).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("provider: load preference %s: %w", taskType, errFind)
	}
	return &row, nil
}

// FallbackCodes decodes the preference's ordered fallback code list.
func FallbackCodes(pref *models.DomainProviderPreference) []string {
	if pref == nil || len(pref.Fallbacks) == 0 {
		return nil
	}
	var codes []string
	if errUnmarshal := json.Unmarshal(pref.Fallbacks, &codes); errUnmarshal != nil {
		return nil
	}
	return codes
}
