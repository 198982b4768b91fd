package provider

import (
	"context"
	"strings"

	"github.com/rankpilot/rankpilot/internal/models"
)

// Resolver picks the provider that handles a task: the domain's declared
// preference first, its fallbacks in listed order next, and the system
// default (first active provider in the task category) last. A provider
// qualifies only when it is active and configured for the acting user.
type Resolver struct {
	catalog *Catalog
	drivers *DriverRegistry
}

// NewResolver constructs a Resolver.
func NewResolver(catalog *Catalog, drivers *DriverRegistry) *Resolver {
	return &Resolver{catalog: catalog, drivers: drivers}
}

// TaskCategory extracts a task type's category, the prefix before the
// first dot: speed.pagespeed resolves to speed.
func TaskCategory(taskType string) string {
	if idx := strings.IndexByte(taskType, '.'); idx >= 0 {
		return taskType[:idx]
	}
	return taskType
}

// Resolve walks the resolution order and returns the first usable
// provider, or nil when none qualifies. Callers treat nil as "no provider
// available" and fail the requested action. Resolution never mutates
// state and is safe to repeat on retries.
func (r *Resolver) Resolve(ctx context.Context, userID, domainID uint64, taskType string) (*models.Provider, error) {
	pref, errPref := r.catalog.PreferenceFor(ctx, domainID, taskType)
	if errPref != nil {
		return nil, errPref
	}
	if pref != nil {
		codes := append([]string{pref.ProviderCode}, FallbackCodes(pref)...)
		for _, code := range codes {
			candidate, errCheck := r.usableByCode(ctx, userID, code)
			if errCheck != nil {
				return nil, errCheck
			}
			if candidate != nil {
				return candidate, nil
			}
		}
	}

	candidates, errList := r.catalog.ActiveInCategory(ctx, TaskCategory(taskType))
	if errList != nil {
		return nil, errList
	}
	for i := range candidates {
		configured, errCheck := r.configuredForUser(ctx, userID, candidates[i].Code)
		if errCheck != nil {
			return nil, errCheck
		}
		if configured {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// Settings returns the user's decoded settings for a provider code.
// Resolution already verified they exist and validate.
func (r *Resolver) Settings(ctx context.Context, userID uint64, code string) (Params, error) {
	return r.catalog.EnabledUserSettings(ctx, userID, code)
}

// usableByCode returns the provider when it is active and configured for
// the user, nil otherwise.
func (r *Resolver) usableByCode(ctx context.Context, userID uint64, code string) (*models.Provider, error) {
	candidate, errLoad := r.catalog.ActiveByCode(ctx, code)
	if errLoad != nil {
		return nil, errLoad
	}
	if candidate == nil {
		return nil, nil
	}
	configured, errCheck := r.configuredForUser(ctx, userID, code)
	if errCheck != nil {
		return nil, errCheck
	}
	if !configured {
		return nil, nil
	}
	return candidate, nil
}

// configuredForUser reports whether an enabled user setting exists for
// the code and passes driver validation. An unregistered code propagates
// as UnknownCodeError since an active catalog row without a driver is a
// configuration bug.
func (r *Resolver) configuredForUser(ctx context.Context, userID uint64, code string) (bool, error) {
	settings, errSettings := r.catalog.EnabledUserSettings(ctx, userID, code)
	if errSettings != nil {
		return false, errSettings
	}
	if settings == nil {
		return false, nil
	}
	driver, errDriver := r.drivers.Get(code)
	if errDriver != nil {
		return false, errDriver
	}
	return driver.ValidateSettings(settings) == nil, nil
}
