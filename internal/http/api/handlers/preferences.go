package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceHandler serves per-domain provider preference endpoints.
type PreferenceHandler struct {
	db *gorm.DB
}

// NewPreferenceHandler constructs a PreferenceHandler.
func NewPreferenceHandler(db *gorm.DB) *PreferenceHandler {
	return &PreferenceHandler{db: db}
}

// List returns the domain's provider preferences.
func (h *PreferenceHandler) List(c *gin.Context) {
	userID := CurrentUserID(c)
	domainID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || domainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain id"})
		return
	}

	ctx := c.Request.Context()
	if !h.ownsDomain(c, userID, domainID) {
		return
	}

	var rows []models.DomainProviderPreference
	if errFind := h.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("task_type ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list preferences failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		var fallbacks []string
		if len(row.Fallbacks) > 0 {
			_ = json.Unmarshal(row.Fallbacks, &fallbacks)
		}
		out = append(out, gin.H{
			"task_type":     row.TaskType,
			"provider_code": row.ProviderCode,
			"fallbacks":     fallbacks,
		})
	}
	c.JSON(http.StatusOK, gin.H{"preferences": out})
}

// upsertPreferenceRequest defines the preference payload.
type upsertPreferenceRequest struct {
	TaskType     string   `json:"task_type" binding:"required"`     // Task the preference applies to.
	ProviderCode string   `json:"provider_code" binding:"required"` // Primary provider code.
	Fallbacks    []string `json:"fallbacks"`                        // Ordered fallback codes.
}

// Upsert stores a domain's preferred provider and fallback order for a
// task type. Codes must exist in the catalog; inactive codes are allowed
// since resolution skips them at run time.
func (h *PreferenceHandler) Upsert(c *gin.Context) {
	userID := CurrentUserID(c)
	domainID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || domainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain id"})
		return
	}

	var req upsertPreferenceRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_type and provider_code are required"})
		return
	}
	req.TaskType = strings.TrimSpace(req.TaskType)
	req.ProviderCode = strings.TrimSpace(req.ProviderCode)
	if req.TaskType == "" || req.ProviderCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_type and provider_code are required"})
		return
	}

	ctx := c.Request.Context()
	if !h.ownsDomain(c, userID, domainID) {
		return
	}

	codes := append([]string{req.ProviderCode}, req.Fallbacks...)
	for _, code := range codes {
		var count int64
		if errCount := h.db.WithContext(ctx).
			Model(&models.Provider{}).
			Where("code = ?", code).
			Count(&count).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check provider failed"})
			return
		}
		if count == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown provider code " + code})
			return
		}
	}

	fallbacks := req.Fallbacks
	if fallbacks == nil {
		fallbacks = []string{}
	}
	encoded, errMarshal := json.Marshal(fallbacks)
	if errMarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fallbacks"})
		return
	}

	row := models.DomainProviderPreference{
		DomainID:     domainID,
		TaskType:     req.TaskType,
		ProviderCode: req.ProviderCode,
		Fallbacks:    datatypes.JSON(encoded),
	}
	if errUpsert := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain_id"}, {Name: "task_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider_code", "fallbacks", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save preference failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_type":     req.TaskType,
		"provider_code": req.ProviderCode,
		"fallbacks":     fallbacks,
	})
}

// ownsDomain verifies the domain belongs to the user, writing the error
// response itself when it does not.
func (h *PreferenceHandler) ownsDomain(c *gin.Context, userID, domainID uint64) bool {
	var domain models.Domain
	errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", domainID, userID).
		Take(&domain).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load domain failed"})
		}
		return false
	}
	return true
}
