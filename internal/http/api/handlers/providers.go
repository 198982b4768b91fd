package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/provider"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderHandler serves the provider catalog and per-user settings.
type ProviderHandler struct {
	db      *gorm.DB
	drivers *provider.DriverRegistry
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(db *gorm.DB, drivers *provider.DriverRegistry) *ProviderHandler {
	return &ProviderHandler{db: db, drivers: drivers}
}

// List returns the active provider catalog.
func (h *ProviderHandler) List(c *gin.Context) {
	var providers []models.Provider
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&providers).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list providers failed"})
		return
	}

	out := make([]gin.H, 0, len(providers))
	for _, row := range providers {
		out = append(out, gin.H{
			"code":     row.Code,
			"category": row.Category,
			"name":     row.Name,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// ListSettings returns the user's provider settings with credentials
// redacted to their key names.
func (h *ProviderHandler) ListSettings(c *gin.Context) {
	userID := CurrentUserID(c)
	var rows []models.UserProviderSetting
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("provider_code ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"provider_code": row.ProviderCode,
			"is_enabled":    row.IsEnabled,
			"setting_keys":  settingKeys(row.Settings),
		})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// upsertSettingRequest defines the provider settings payload.
type upsertSettingRequest struct {
	Settings  map[string]any `json:"settings"`   // Driver-specific credentials/config.
	IsEnabled *bool          `json:"is_enabled"` // Defaults to true when omitted.
}

// UpsertSetting validates and stores the user's settings for a provider.
// Settings destined for an enabled row must pass driver validation.
func (h *ProviderHandler) UpsertSetting(c *gin.Context) {
	userID := CurrentUserID(c)
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider code is required"})
		return
	}

	var req upsertSettingRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	if req.Settings == nil {
		req.Settings = map[string]any{}
	}

	ctx := c.Request.Context()
	var catalogRow models.Provider
	if errFind := h.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		Take(&catalogRow).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load provider failed"})
		return
	}

	driver, errDriver := h.drivers.Get(code)
	if errDriver != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	if enabled {
		if errValidate := driver.ValidateSettings(provider.Params(req.Settings)); errValidate != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errValidate.Error()})
			return
		}
	}

	encoded, errMarshal := json.Marshal(req.Settings)
	if errMarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings"})
		return
	}

	row := models.UserProviderSetting{
		UserID:       userID,
		ProviderCode: code,
		Settings:     datatypes.JSON(encoded),
		IsEnabled:    enabled,
	}
	if errUpsert := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"settings", "is_enabled", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_code": code, "is_enabled": enabled})
}

// settingKeys lists the top-level keys of a settings blob without values.
func settingKeys(raw datatypes.JSON) []string {
	keys := []string{}
	if len(raw) == 0 {
		return keys
	}
	var decoded map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(raw, &decoded); errUnmarshal != nil {
		return keys
	}
	for key := range decoded {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
