package handlers

import (
	"net/http"

	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PlanHandler serves plan listing endpoints.
type PlanHandler struct {
	db *gorm.DB
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(db *gorm.DB) *PlanHandler {
	return &PlanHandler{db: db}
}

// List returns enabled plans.
func (h *PlanHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, created_at DESC").
		Find(&plans).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}

	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		out = append(out, gin.H{
			"id":          plan.ID,
			"code":        plan.Code,
			"name":        plan.Name,
			"month_price": plan.MonthPrice,
			"description": plan.Description,
			"limits":      plan.Limits,
			"rate_limit":  plan.RateLimit,
			"sort_order":  plan.SortOrder,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}
