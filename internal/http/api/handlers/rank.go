package handlers

import (
	"net/http"
	"strconv"

	"github.com/rankpilot/rankpilot/internal/rank"

	"github.com/gin-gonic/gin"
)

// defaultRankPeriodDays is the comparison window when the query omits one.
const defaultRankPeriodDays = 7

// RankHandler serves keyword movement endpoints.
type RankHandler struct {
	tracker *rank.Tracker
}

// NewRankHandler constructs a RankHandler.
func NewRankHandler(tracker *rank.Tracker) *RankHandler {
	return &RankHandler{tracker: tracker}
}

// Winners returns keywords with improved positions, best movement first.
func (h *RankHandler) Winners(c *gin.Context) {
	h.movement(c, rank.Winners)
}

// Losers returns keywords with worsened positions, worst movement first.
func (h *RankHandler) Losers(c *gin.Context) {
	h.movement(c, rank.Losers)
}

// movement computes deltas over the requested window and filters them.
func (h *RankHandler) movement(c *gin.Context, filter func([]rank.Delta) []rank.Delta) {
	periodDays := defaultRankPeriodDays
	if raw := c.Query("period_days"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period_days must be a positive integer"})
			return
		}
		periodDays = parsed
	}

	deltas, errCompute := h.tracker.ComputeDeltas(c.Request.Context(), CurrentUserID(c), periodDays)
	if errCompute != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "compute deltas failed"})
		return
	}

	filtered := filter(deltas)
	out := make([]gin.H, 0, len(filtered))
	for _, d := range filtered {
		out = append(out, gin.H{
			"keyword_id": d.KeywordID,
			"domain_id":  d.DomainID,
			"phrase":     d.Phrase,
			"current":    d.Current,
			"previous":   d.Previous,
			"delta":      d.Delta,
		})
	}
	c.JSON(http.StatusOK, gin.H{"period_days": periodDays, "keywords": out})
}
