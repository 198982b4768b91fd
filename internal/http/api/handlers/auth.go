package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rankpilot/rankpilot/internal/config"
	"github.com/rankpilot/rankpilot/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TokenIssuer signs an access token for a user.
type TokenIssuer func(jwtCfg config.JWTConfig, userID uint64, now time.Time) (string, error)

// AuthHandler serves login endpoints.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
	issue  TokenIssuer
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, issue TokenIssuer) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, issue: issue}
}

// loginRequest defines the login payload.
type loginRequest struct {
	Email    string `json:"email" binding:"required"`    // Login email.
	Password string `json:"password" binding:"required"` // Plain password.
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("email = ? AND active = ?", strings.ToLower(strings.TrimSpace(req.Email)), true).
		Take(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if errCompare := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); errCompare != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errIssue := h.issue(h.jwtCfg, user.ID, time.Now().UTC())
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": user.ID, "name": user.Name})
}
