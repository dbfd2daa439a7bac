package middleware

import (
	"net/http"
	"strings"

	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

const contextUserID = "user_id"

// Auth returns a gin middleware that requires a valid Bearer token and
// stores the authenticated user id on the context.
func Auth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			common.ErrorResponse(c, http.StatusUnauthorized, "missing bearer token", common.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := manager.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token", err)
			c.Abort()
			return
		}

		c.Set(contextUserID, claims.UserID)
		c.Next()
	}
}

// GetUserID returns the authenticated user id set by Auth, or "".
func GetUserID(c *gin.Context) string {
	return c.GetString(contextUserID)
}
