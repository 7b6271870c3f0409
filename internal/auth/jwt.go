package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ai-bootcamp/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// ContextIdentity is the gin context key holding the caller's *Identity.
const ContextIdentity = "identity"

// AppMetadata is the provider-managed metadata block; only admins can change it.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// Claims holds the access token claims issued by the hosted auth provider.
// Subject carries the user id. Role is the database role ("authenticated"); the
// application role lives in app_metadata.
type Claims struct {
	Email       string      `json:"email"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller derived from validated claims.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// IsAdmin reports whether the caller has the admin application role.
func (i *Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

// IdentityFromContext returns the identity set by the auth middleware, if any.
func IdentityFromContext(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}

// TokenValidator validates provider access tokens signed with the project's shared secret.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a validator for HS256 tokens.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Generate signs a token the way the provider does. Used by tests and local tooling.
func (v *TokenValidator) Generate(userID uuid.UUID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:       email,
		Role:        "authenticated",
		AppMetadata: AppMetadata{Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Validate parses and validates a token, returning the caller identity.
func (v *TokenValidator) Validate(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	role := models.RoleUser
	if claims.AppMetadata.Role == models.RoleAdmin || claims.Role == models.RoleAdmin {
		role = models.RoleAdmin
	}
	return &Identity{UserID: userID, Email: claims.Email, Role: role}, nil
}
