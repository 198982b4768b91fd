package handlers

import "github.com/gin-gonic/gin"

// ContextUserIDKey stores the authenticated user ID on the gin context.
// The auth middleware writes it; handlers read it through CurrentUserID.
const ContextUserIDKey = "userID"

// CurrentUserID returns the authenticated user ID set by the auth
// middleware, 0 when absent.
func CurrentUserID(c *gin.Context) uint64 {
	if v, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	return 0
}
