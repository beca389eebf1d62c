package roles

// CreateRoleInput describes a custom role creation request.
type CreateRoleInput struct {
	OrganizationID int64  `json:"-"`
	Name           string `json:"name" validate:"required,max=100"`
	Description    string `json:"description" validate:"max=500"`
}

// StatementInput describes a policy statement creation request. Patterns
// are validated structurally before anything is persisted.
type StatementInput struct {
	Effect     string            `json:"effect" validate:"required,oneof=ALLOW DENY"`
	Actions    []string          `json:"actions" validate:"required,min=1,dive,required"`
	Resources  []string          `json:"resources" validate:"required,min=1,dive,required"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// AttachInput links an existing statement to a custom role.
type AttachInput struct {
	StatementID int64 `json:"statement_id" validate:"required,gt=0"`
}

// AssignInput grants a role to an organization membership.
type AssignInput struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// GrantInput attaches a statement directly to a principal.
type GrantInput struct {
	StatementID int64 `json:"statement_id" validate:"required,gt=0"`
}
