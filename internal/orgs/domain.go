package orgs

import (
	"time"

	"github.com/arenahub/arenahub/internal/authz"
)

// Organization is a tenant boundary. Exactly one row carries the system
// kind: the reserved organization used to delegate platform permissions.
type Organization struct {
	ID        int64
	Name      string
	Kind      authz.TenantKind
	CreatedAt time.Time
}

// Member links a user to an organization.
type Member struct {
	ID             int64
	OrganizationID int64
	UserID         int64
	JoinedAt       time.Time
}

// CreateInput describes an organization creation request.
type CreateInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	CreatorID int64  `json:"-"`
}
