package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ai-bootcamp/backend/internal/auth"
	"github.com/ai-bootcamp/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates the bearer token and sets the caller in context.
func JWT(validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing or invalid authorization header")
			c.Abort()
			return
		}
		id, err := validator.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// OptionalJWT sets the caller in context when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalJWT(validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c.GetHeader("Authorization")); ok {
			if id, err := validator.Validate(token); err == nil {
				setIdentity(c, id)
			}
		}
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(auth.ContextIdentity, id)
	c.Set(ContextUserID, id.UserID)
	c.Set(ContextUserRole, id.Role)
	c.Set(ContextUserEmail, id.Email)
}
