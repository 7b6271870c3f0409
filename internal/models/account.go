package models

import (
	"time"

	"github.com/google/uuid"
)

// Role of an authenticated account.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account mirrors a user of the hosted auth provider.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
