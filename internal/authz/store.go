package authz

import (
	"context"
	"time"
)

// Holder identifies a principal whose decisions depend on a role or
// statement, together with the organization scope of that dependency.
// Mutation paths use holders to invalidate the decision cache.
type Holder struct {
	PrincipalID    int64
	OrganizationID int64
}

// Reader is the evaluation-side view of the policy store: the three
// statement sources the engine unions per request.
type Reader interface {
	// BuiltinRoleNames returns the names of built-in roles the principal
	// holds in the organization.
	BuiltinRoleNames(ctx context.Context, principalID, organizationID int64) ([]string, error)
	// CustomRoleStatements returns the statements attached to every custom
	// role the principal holds in the organization.
	CustomRoleStatements(ctx context.Context, principalID, organizationID int64) ([]Statement, error)
	// DirectStatements returns statements granted straight to the
	// principal within the organization.
	DirectStatements(ctx context.Context, principalID, organizationID int64) ([]Statement, error)
}

// Store is the full persistence boundary for roles, statements,
// attachments, assignments, and direct user policies. The administrative
// service drives the write side.
type Store interface {
	Reader

	GetRole(ctx context.Context, roleID int64) (Role, error)
	ListRoles(ctx context.Context, organizationID int64) ([]Role, error)
	CreateRole(ctx context.Context, organizationID int64, name, description string) (Role, error)
	// CreateBuiltinRole materializes a built-in role as an empty-policy row.
	CreateBuiltinRole(ctx context.Context, organizationID int64, name string, locked bool) (Role, error)
	DeleteRole(ctx context.Context, roleID int64) error

	CreateStatement(ctx context.Context, effect Effect, actions, resources []string, conditions map[string]string) (int64, error)
	DeleteStatement(ctx context.Context, statementID int64) error
	AttachStatement(ctx context.Context, roleID, statementID int64) error
	DetachStatement(ctx context.Context, roleID, statementID int64) error
	// RoleStatementCount reports how many statements are attached to a
	// role. Built-in roles must always report zero.
	RoleStatementCount(ctx context.Context, roleID int64) (int64, error)

	AssignRole(ctx context.Context, memberID, roleID, grantedBy int64) error
	RevokeRole(ctx context.Context, memberID, roleID int64) error
	// MemberPrincipal resolves a membership to its principal and organization.
	MemberPrincipal(ctx context.Context, memberID int64) (Holder, error)

	GrantUserPolicy(ctx context.Context, principalID, organizationID, statementID, grantedBy int64) error
	RevokeUserPolicy(ctx context.Context, principalID, organizationID, statementID int64) error

	// RoleHolders returns every principal holding the role.
	RoleHolders(ctx context.Context, roleID int64) ([]Holder, error)
	// StatementHolders returns every principal whose grants reference the
	// statement, through role attachments or direct policies.
	StatementHolders(ctx context.Context, statementID int64) ([]Holder, error)
}

// Clock abstracts time for tests.
type Clock func() time.Time
