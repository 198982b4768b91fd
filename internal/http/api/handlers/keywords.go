package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// KeywordHandler serves keyword management endpoints.
type KeywordHandler struct {
	db *gorm.DB
}

// NewKeywordHandler constructs a KeywordHandler.
func NewKeywordHandler(db *gorm.DB) *KeywordHandler {
	return &KeywordHandler{db: db}
}

// List returns the domain's keywords.
func (h *KeywordHandler) List(c *gin.Context) {
	userID := CurrentUserID(c)
	domainID, ok := keywordPathDomainID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if !keywordOwnsDomain(c, h.db, userID, domainID) {
		return
	}

	var keywords []models.Keyword
	if errFind := h.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("id ASC").
		Find(&keywords).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list keywords failed"})
		return
	}

	out := make([]gin.H, 0, len(keywords))
	for _, keyword := range keywords {
		out = append(out, gin.H{
			"id":        keyword.ID,
			"phrase":    keyword.Phrase,
			"is_active": keyword.IsActive,
		})
	}
	c.JSON(http.StatusOK, gin.H{"keywords": out})
}

// createKeywordRequest defines the keyword creation payload.
type createKeywordRequest struct {
	Phrase string `json:"phrase" binding:"required"` // Search phrase to track.
}

// Create adds a tracked keyword to the domain.
func (h *KeywordHandler) Create(c *gin.Context) {
	userID := CurrentUserID(c)
	domainID, ok := keywordPathDomainID(c)
	if !ok {
		return
	}

	var req createKeywordRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phrase is required"})
		return
	}
	phrase := strings.TrimSpace(req.Phrase)
	if phrase == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phrase is required"})
		return
	}

	ctx := c.Request.Context()
	if !keywordOwnsDomain(c, h.db, userID, domainID) {
		return
	}

	keyword := models.Keyword{
		DomainID: domainID,
		Phrase:   phrase,
		IsActive: true,
	}
	if errCreate := h.db.WithContext(ctx).Create(&keyword).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create keyword failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": keyword.ID, "phrase": keyword.Phrase, "is_active": keyword.IsActive})
}

// keywordPathDomainID parses the domain id path parameter.
func keywordPathDomainID(c *gin.Context) (uint64, bool) {
	domainID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || domainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain id"})
		return 0, false
	}
	return domainID, true
}

// keywordOwnsDomain verifies domain ownership, writing the error response
// itself when the check fails.
func keywordOwnsDomain(c *gin.Context, db *gorm.DB, userID, domainID uint64) bool {
	var domain models.Domain
	errFind := db.WithContext(c.Request.Context()).
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
