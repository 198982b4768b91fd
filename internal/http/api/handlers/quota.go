package handlers

import (
	"net/http"

	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/quota"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// QuotaHandler serves usage summary endpoints.
type QuotaHandler struct {
	db    *gorm.DB
	quota *quota.Engine
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(db *gorm.DB, engine *quota.Engine) *QuotaHandler {
	return &QuotaHandler{db: db, quota: engine}
}

// summaryKeys lists the quota keys reported by the usage summary, in
// display order.
var summaryKeys = []string{
	quota.KeyAuditsPerDay,
	quota.KeyAuditsPerMonth,
	quota.KeySpeedChecksPerDay,
	quota.KeyCrawlRequestsPerDay,
	quota.KeyBacklinksFetchesPerMonth,
	quota.KeySerpChecksPerMonth,
	quota.KeyGoogleSyncNowPerDay,
	quota.KeyPDFReportsPerMonth,
	quota.KeyMaxActiveDomains,
}

// Summary reports limit and current usage per quota key. Unlimited keys
// report a null limit. The active-domain cap reports the live count.
func (h *QuotaHandler) Summary(c *gin.Context) {
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	entries := make([]gin.H, 0, len(summaryKeys))
	for _, key := range summaryKeys {
		limit, errLimit := h.quota.GetLimit(ctx, userID, key)
		if errLimit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load limits failed"})
			return
		}

		var used int64
		if key == quota.KeyMaxActiveDomains {
			if errCount := h.db.WithContext(ctx).
				Model(&models.Domain{}).
				Where("user_id = ? AND status = ?", userID, models.DomainStatusActive).
				Count(&used).Error; errCount != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "count domains failed"})
				return
			}
		} else {
			cl := quota.Classify(key)
			var errUsed error
			used, errUsed = h.quota.GetUsed(ctx, userID, cl.MetricKey, cl.PeriodType)
			if errUsed != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "load usage failed"})
				return
			}
		}

		entry := gin.H{
			"quota_key": key,
			"used":      used,
		}
		if limit != nil {
			entry["limit"] = *limit
		} else {
			entry["limit"] = nil
		}
		entries = append(entries, entry)
	}
	c.JSON(http.StatusOK, gin.H{"usage": entries})
}

// costHistoryLimit caps the cost entries returned per request.
const costHistoryLimit = 100

// Costs returns the user's most recent cost log entries.
func (h *QuotaHandler) Costs(c *gin.Context) {
	userID := CurrentUserID(c)
	var rows []models.CostLogEntry
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(costHistoryLimit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list costs failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"task_type":            row.TaskType,
			"provider_code":        row.ProviderCode,
			"units":                row.Units,
			"unit_name":            row.UnitName,
			"estimated_cost_cents": row.EstimatedCostCents,
			"created_at":           row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"costs": out})
}
