package authz

// Built-in role names. Regular and system organizations define separate
// catalogs; the registry is keyed by (role name, tenant kind).
const (
	RoleAdmin             = "Admin"
	RoleTournamentManager = "Tournament Manager"
	RoleMemberManager     = "Member Manager"
	RoleViewer            = "Viewer"

	RolePlatformAdmin       = "Platform Admin"
	RoleUserManager         = "User Manager"
	RoleOrganizationManager = "Organization Manager"
	RoleSupportAuditor      = "Support Auditor"
)

type builtinRole struct {
	name       string
	locked     bool
	statements []Statement
}

// builtinCatalog holds the code-compiled permission tables. Statements
// carry synthetic negative identifiers so matched-statement reporting can
// reference them without colliding with persisted rows.
var builtinCatalog map[TenantKind][]builtinRole

func init() {
	builtinCatalog = map[TenantKind][]builtinRole{
		TenantRegular: {
			{name: RoleAdmin, locked: true, statements: []Statement{
				allow([]string{"*"}, []string{"*"}),
			}},
			{name: RoleTournamentManager, statements: []Statement{
				allow([]string{"tournament:*"}, []string{"organization:*", "tournament:*"}),
			}},
			{name: RoleMemberManager, statements: []Statement{
				allow([]string{"member:*"}, []string{"organization:*"}),
			}},
			{name: RoleViewer, statements: []Statement{
				allow([]string{"tournament:view", "member:view", "organization:view"}, []string{"*"}),
			}},
		},
		TenantSystem: {
			{name: RolePlatformAdmin, locked: true, statements: []Statement{
				allow([]string{"*"}, []string{"*"}),
			}},
			{name: RoleUserManager, statements: []Statement{
				allow([]string{"system:view_users", "system:manage_users"}, []string{"*"}),
			}},
			{name: RoleOrganizationManager, statements: []Statement{
				allow([]string{"system:create_organization", "system:view_organizations"}, []string{"*"}),
			}},
			{name: RoleSupportAuditor, statements: []Statement{
				allow([]string{"system:view_users", "system:view_organizations", "audit:view"}, []string{"*"}),
			}},
		},
	}

	id := int64(0)
	for _, kind := range []TenantKind{TenantRegular, TenantSystem} {
		roles := builtinCatalog[kind]
		for i := range roles {
			for j := range roles[i].statements {
				id--
				roles[i].statements[j].ID = id
			}
		}
	}
}

func allow(actions, resources []string) Statement {
	s := Statement{Effect: EffectAllow}
	for _, a := range actions {
		s.Actions = append(s.Actions, MustPattern(a))
	}
	for _, r := range resources {
		s.Resources = append(s.Resources, MustPattern(r))
	}
	return s
}

// BuiltinRoleNames returns the catalog role names for a tenant kind, in
// registration order. Organizations materialize these as empty-policy
// role rows at creation time.
func BuiltinRoleNames(kind TenantKind) []string {
	roles := builtinCatalog[kind]
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.name)
	}
	return names
}

// BuiltinRoleLocked reports whether the named built-in role is locked
// against deletion. Unknown names report false.
func BuiltinRoleLocked(kind TenantKind, name string) bool {
	for _, r := range builtinCatalog[kind] {
		if r.name == name {
			return r.locked
		}
	}
	return false
}

// AdminRoleName returns the built-in role assigned to an organization's
// creator, per tenant kind.
func AdminRoleName(kind TenantKind) string {
	if kind == TenantSystem {
		return RolePlatformAdmin
	}
	return RoleAdmin
}

// BuiltinStatements synthesizes the virtual statements for the named
// built-in roles under the given tenant kind. Names without a catalog
// entry contribute nothing.
func BuiltinStatements(kind TenantKind, names []string) []Statement {
	if len(names) == 0 {
		return nil
	}
	held := make(map[string]struct{}, len(names))
	for _, n := range names {
		held[n] = struct{}{}
	}
	var out []Statement
	for _, r := range builtinCatalog[kind] {
		if _, ok := held[r.name]; ok {
			out = append(out, r.statements...)
		}
	}
	return out
}
