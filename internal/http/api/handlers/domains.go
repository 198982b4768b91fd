package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rankpilot/rankpilot/internal/db"
	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/quota"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DomainHandler serves domain management endpoints.
type DomainHandler struct {
	db    *gorm.DB
	quota *quota.Engine
}

// NewDomainHandler constructs a DomainHandler.
func NewDomainHandler(db *gorm.DB, engine *quota.Engine) *DomainHandler {
	return &DomainHandler{db: db, quota: engine}
}

// List returns the user's domains, optionally filtered by a host search.
func (h *DomainHandler) List(c *gin.Context) {
	userID := CurrentUserID(c)
	query := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id ASC")
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+search+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(h.db, "host"), pattern)
	}

	var domains []models.Domain
	if errFind := query.Find(&domains).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list domains failed"})
		return
	}

	out := make([]gin.H, 0, len(domains))
	for _, domain := range domains {
		out = append(out, gin.H{
			"id":     domain.ID,
			"host":   domain.Host,
			"status": domain.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"domains": out})
}

// createDomainRequest defines the domain creation payload.
type createDomainRequest struct {
	Host string `json:"host" binding:"required"` // Hostname to track.
}

// Create adds a domain, enforcing the active-domain cap.
func (h *DomainHandler) Create(c *gin.Context) {
	userID := CurrentUserID(c)

	var req createDomainRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host is required"})
		return
	}
	host := strings.ToLower(strings.TrimSpace(req.Host))
	if host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host is required"})
		return
	}

	ctx := c.Request.Context()
	if errQuota := h.quota.AssertAllowed(ctx, userID, quota.KeyMaxActiveDomains, 1); errQuota != nil {
		var exceeded *quota.ExceededError
		if errors.As(errQuota, &exceeded) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "active domain limit reached",
				"quota_key": exceeded.QuotaKey,
				"limit":     exceeded.Limit,
				"used":      exceeded.Used,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "check domain limit failed"})
		return
	}

	domain := models.Domain{
		UserID: userID,
		Host:   host,
		Status: models.DomainStatusActive,
	}
	if errCreate := h.db.WithContext(ctx).Create(&domain).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create domain failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": domain.ID, "host": domain.Host, "status": domain.Status})
}

// updateDomainStatusRequest defines the status transition payload.
type updateDomainStatusRequest struct {
	Status models.DomainStatus `json:"status" binding:"required"` // Target status.
}

// UpdateStatus transitions a domain between active, paused, and archived.
// Activation re-checks the standing cap.
func (h *DomainHandler) UpdateStatus(c *gin.Context) {
	userID := CurrentUserID(c)
	domainID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || domainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain id"})
		return
	}

	var req updateDomainStatusRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	switch req.Status {
	case models.DomainStatusActive, models.DomainStatusPaused, models.DomainStatusArchived:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	ctx := c.Request.Context()
	var domain models.Domain
	if errFind := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", domainID, userID).
		Take(&domain).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
		return
	}

	if req.Status == models.DomainStatusActive && domain.Status != models.DomainStatusActive {
		if errQuota := h.quota.AssertAllowed(ctx, userID, quota.KeyMaxActiveDomains, 1); errQuota != nil {
			var exceeded *quota.ExceededError
			if errors.As(errQuota, &exceeded) {
				c.JSON(http.StatusForbidden, gin.H{
					"error":     "active domain limit reached",
					"quota_key": exceeded.QuotaKey,
					"limit":     exceeded.Limit,
					"used":      exceeded.Used,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check domain limit failed"})
			return
		}
	}

	if errUpdate := h.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", domain.ID).
		Update("status", req.Status).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update domain failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": domain.ID, "status": req.Status})
}
