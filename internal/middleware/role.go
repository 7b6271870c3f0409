package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ai-bootcamp/backend/internal/auth"
	"github.com/ai-bootcamp/backend/pkg/response"
)

// RequireRole returns a middleware that allows only callers with one of the given roles.
// It must run after JWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		id, ok := auth.IdentityFromContext(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
