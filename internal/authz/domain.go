package authz

import "time"

// GlobalRole is the platform-wide role of a principal.
type GlobalRole string

const (
	// GlobalRoleUser has no implicit privilege; access is derived from
	// organization-scoped roles.
	GlobalRoleUser GlobalRole = "USER"
	// GlobalRoleAdmin bypasses policy evaluation entirely.
	GlobalRoleAdmin GlobalRole = "ADMIN"
)

// SystemOrgID is the reserved identifier of the system organization used
// to delegate platform-wide permissions without granting ADMIN.
const SystemOrgID int64 = 1

// TenantKind distinguishes the two organization catalogs.
type TenantKind string

const (
	// TenantRegular is an ordinary organization.
	TenantRegular TenantKind = "regular"
	// TenantSystem is the reserved system organization.
	TenantSystem TenantKind = "system"
)

// KindOf returns the tenant kind for an organization identifier.
func KindOf(organizationID int64) TenantKind {
	if organizationID == SystemOrgID {
		return TenantSystem
	}
	return TenantRegular
}

// Principal describes the authenticated actor.
type Principal struct {
	ID         int64
	GlobalRole GlobalRole
}

// IsAdmin reports whether the principal holds the global ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.GlobalRole == GlobalRoleAdmin
}

// Effect is the outcome class of a policy statement or decision.
type Effect string

const (
	// EffectAllow permits the action.
	EffectAllow Effect = "ALLOW"
	// EffectDeny blocks the action and overrides any allow.
	EffectDeny Effect = "DENY"
	// EffectImplicitDeny is the default-deny outcome when no statement matches.
	EffectImplicitDeny Effect = "IMPLICIT_DENY"
)

// Statement is a single policy statement. Actions and Resources hold
// patterns compiled at write time; Conditions, when present, must all
// hold by exact equality against the caller-supplied resource attributes.
type Statement struct {
	ID         int64
	Effect     Effect
	Actions    []Pattern
	Resources  []Pattern
	Conditions map[string]string
}

// Role is a persisted role row. Built-in roles carry no attached
// statements; their permissions live in the registry.
type Role struct {
	ID             int64
	OrganizationID int64
	Name           string
	Description    string
	BuiltIn        bool
	Locked         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Request is one authorization question.
type Request struct {
	Principal          Principal
	Action             string
	Resource           string
	OrganizationID     int64
	ResourceAttributes map[string]string
}

// Decision is the evaluation outcome for a Request.
type Decision struct {
	Allowed             bool
	Effect              Effect
	MatchedStatementIDs []int64
	Reason              string
}
