package api

import (
	"chathub/services"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const uidContextKey = "uid"

// AuthMiddleware authenticates requests with a Bearer token and stores the
// verified uid on the request context.
func AuthMiddleware(auth services.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no authorization header"})
			c.Abort()
			return
		}
		if len(tokenString) > 7 && strings.ToLower(tokenString[:7]) == "bearer " {
			tokenString = tokenString[7:]
		}

		uid, err := auth.Verify(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(uidContextKey, uid)
		c.Next()
	}
}
