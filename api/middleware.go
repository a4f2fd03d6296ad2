package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coldpath/coldpath-backend/services"
)

// AuthMiddleware checks the Authorization header for a valid JWT and stores
// the user and organization ids for downstream handlers.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		userID, orgID, err := services.ValidateJWT(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("userID", userID)
		c.Set("orgID", orgID)
		c.Next()
	}
}

// BackendKeyMiddleware strictly ensures external traffic has the master key.
// This keeps a deployed backend from being hit directly without routing
// through the frontend.
func BackendKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := os.Getenv("COLDPATH_API_KEY")
		if expected != "" {
			if c.GetHeader("X-Coldpath-Key") != expected {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid backend access key"})
				return
			}
		}
		c.Next()
	}
}

// currentIdentity pulls the authenticated user/org pair out of the request
// context.
func currentIdentity(c *gin.Context) (userID, orgID uint, ok bool) {
	uv, uok := c.Get("userID")
	ov, ook := c.Get("orgID")
	if !uok || !ook {
		return 0, 0, false
	}
	userID, uok = uv.(uint)
	orgID, ook = ov.(uint)
	return userID, orgID, uok && ook
}
