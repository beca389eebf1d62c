package auth

import (
	"time"

	"github.com/arenahub/arenahub/internal/authz"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	GlobalRole   authz.GlobalRole
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the account into the engine's principal shape.
func (u User) Principal() authz.Principal {
	return authz.Principal{ID: u.ID, GlobalRole: u.GlobalRole}
}

// globalRole parses a stored role column. Anything unrecognized falls
// back to USER, never to ADMIN.
func globalRole(s string) authz.GlobalRole {
	if s == string(authz.GlobalRoleAdmin) {
		return authz.GlobalRoleAdmin
	}
	return authz.GlobalRoleUser
}
