package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the policy store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// BuiltinRoleNames returns built-in role names held by the principal in
// the organization.
func (r *Repository) BuiltinRoleNames(ctx context.Context, principalID, organizationID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.name
		FROM roles ro
		JOIN member_role_assignments a ON a.role_id = ro.id
		JOIN organization_members m ON m.id = a.member_id
		WHERE m.user_id = $1 AND m.organization_id = $2 AND ro.is_builtin`,
		principalID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CustomRoleStatements returns statements attached to custom roles held
// by the principal in the organization.
func (r *Repository) CustomRoleStatements(ctx context.Context, principalID, organizationID int64) ([]Statement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT s.id, s.effect, s.actions, s.resources, s.conditions
		FROM policy_statements s
		JOIN role_policies rp ON rp.policy_statement_id = s.id
		JOIN roles ro ON ro.id = rp.role_id
		JOIN member_role_assignments a ON a.role_id = ro.id
		JOIN organization_members m ON m.id = a.member_id
		WHERE m.user_id = $1 AND m.organization_id = $2 AND NOT ro.is_builtin
		  AND ro.organization_id = $2`,
		principalID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatements(rows)
}

// DirectStatements returns statements granted straight to the principal
// within the organization.
func (r *Repository) DirectStatements(ctx context.Context, principalID, organizationID int64) ([]Statement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.effect, s.actions, s.resources, s.conditions
		FROM policy_statements s
		JOIN user_policies up ON up.policy_statement_id = s.id
		WHERE up.user_id = $1 AND up.organization_id = $2`,
		principalID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatements(rows)
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, roleID int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, description, is_builtin, is_locked, created_at, updated_at
		FROM roles WHERE id = $1`, roleID)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles belonging to the organization, built-in
// roles first.
func (r *Repository) ListRoles(ctx context.Context, organizationID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, description, is_builtin, is_locked, created_at, updated_at
		FROM roles WHERE organization_id = $1
		ORDER BY is_builtin DESC, name`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CreateRole inserts a custom role.
func (r *Repository) CreateRole(ctx context.Context, organizationID int64, name, description string) (Role, error) {
	return r.insertRole(ctx, organizationID, name, description, false, false)
}

// CreateBuiltinRole materializes a built-in role as an empty-policy row.
func (r *Repository) CreateBuiltinRole(ctx context.Context, organizationID int64, name string, locked bool) (Role, error) {
	return r.insertRole(ctx, organizationID, name, "", true, locked)
}

func (r *Repository) insertRole(ctx context.Context, organizationID int64, name, description string, builtin, locked bool) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (organization_id, name, description, is_builtin, is_locked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, organization_id, name, description, is_builtin, is_locked, created_at, updated_at`,
		organizationID, name, description, builtin, locked)
	role, err := scanRole(row)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return Role{}, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role; attachments and assignments cascade.
func (r *Repository) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateStatement persists a policy statement. Callers validate patterns
// before reaching this boundary.
func (r *Repository) CreateStatement(ctx context.Context, effect Effect, actions, resources []string, conditions map[string]string) (int64, error) {
	condJSON, err := conditionsJSON(conditions)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO policy_statements (effect, actions, resources, conditions)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		string(effect), actions, resources, condJSON).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// conditionsJSON encodes the condition map for the jsonb column. An empty
// map encodes as {} rather than a nil slice: pgx would send the nil as
// SQL NULL and the column is NOT NULL.
func conditionsJSON(conditions map[string]string) ([]byte, error) {
	if len(conditions) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(conditions)
}

// DeleteStatement removes a statement; attachments and grants cascade.
func (r *Repository) DeleteStatement(ctx context.Context, statementID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM policy_statements WHERE id = $1`, statementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachStatement links a statement to a role.
func (r *Repository) AttachStatement(ctx context.Context, roleID, statementID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_policies (role_id, policy_statement_id) VALUES ($1, $2)`,
		roleID, statementID)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("%w: statement already attached", ErrConflict)
		}
		if isPgCode(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DetachStatement removes a role-statement link.
func (r *Repository) DetachStatement(ctx context.Context, roleID, statementID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM role_policies WHERE role_id = $1 AND policy_statement_id = $2`,
		roleID, statementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RoleStatementCount reports attached statements for a role.
func (r *Repository) RoleStatementCount(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM role_policies WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

// AssignRole links a membership to a role. Duplicate assignments surface
// as ErrConflict, never as a silent second row.
func (r *Repository) AssignRole(ctx context.Context, memberID, roleID, grantedBy int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO member_role_assignments (member_id, role_id, granted_by)
		VALUES ($1, $2, $3)`,
		memberID, roleID, grantedBy)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("%w: member already holds role", ErrConflict)
		}
		if isPgCode(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RevokeRole removes a member-role assignment.
func (r *Repository) RevokeRole(ctx context.Context, memberID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM member_role_assignments WHERE member_id = $1 AND role_id = $2`,
		memberID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MemberPrincipal resolves a membership to its principal and organization.
func (r *Repository) MemberPrincipal(ctx context.Context, memberID int64) (Holder, error) {
	var h Holder
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, organization_id FROM organization_members WHERE id = $1`,
		memberID).Scan(&h.PrincipalID, &h.OrganizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Holder{}, ErrNotFound
		}
		return Holder{}, err
	}
	return h, nil
}

// GrantUserPolicy attaches a statement directly to a principal.
func (r *Repository) GrantUserPolicy(ctx context.Context, principalID, organizationID, statementID, grantedBy int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_policies (user_id, organization_id, policy_statement_id, granted_by)
		VALUES ($1, $2, $3, $4)`,
		principalID, organizationID, statementID, grantedBy)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("%w: policy already granted", ErrConflict)
		}
		if isPgCode(err, pgForeignKeyViolation) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RevokeUserPolicy removes a direct grant.
func (r *Repository) RevokeUserPolicy(ctx context.Context, principalID, organizationID, statementID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_policies
		WHERE user_id = $1 AND organization_id = $2 AND policy_statement_id = $3`,
		principalID, organizationID, statementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RoleHolders returns every principal holding the role.
func (r *Repository) RoleHolders(ctx context.Context, roleID int64) ([]Holder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id, m.organization_id
		FROM member_role_assignments a
		JOIN organization_members m ON m.id = a.member_id
		WHERE a.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHolders(rows)
}

// StatementHolders returns every principal whose grants reference the
// statement, through role attachments or direct policies.
func (r *Repository) StatementHolders(ctx context.Context, statementID int64) ([]Holder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id, m.organization_id
		FROM role_policies rp
		JOIN member_role_assignments a ON a.role_id = rp.role_id
		JOIN organization_members m ON m.id = a.member_id
		WHERE rp.policy_statement_id = $1
		UNION
		SELECT up.user_id, up.organization_id
		FROM user_policies up
		WHERE up.policy_statement_id = $1`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHolders(rows)
}

func scanHolders(rows pgx.Rows) ([]Holder, error) {
	var holders []Holder
	for rows.Next() {
		var h Holder
		if err := rows.Scan(&h.PrincipalID, &h.OrganizationID); err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

func scanStatements(rows pgx.Rows) ([]Statement, error) {
	var statements []Statement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, rows.Err()
}

// scanStatement compiles stored pattern strings. Patterns were validated
// at write time; a parse failure here means the row was corrupted outside
// the administrative boundary and must not silently evaluate.
func scanStatement(row pgx.Row) (Statement, error) {
	var (
		stmt      Statement
		effect    string
		actions   []string
		resources []string
		condJSON  []byte
	)
	if err := row.Scan(&stmt.ID, &effect, &actions, &resources, &condJSON); err != nil {
		return Statement{}, err
	}
	stmt.Effect = Effect(effect)
	var err error
	if stmt.Actions, err = ParsePatterns(actions); err != nil {
		return Statement{}, fmt.Errorf("statement %d: %w", stmt.ID, err)
	}
	if stmt.Resources, err = ParsePatterns(resources); err != nil {
		return Statement{}, fmt.Errorf("statement %d: %w", stmt.ID, err)
	}
	if len(condJSON) > 0 {
		if err := json.Unmarshal(condJSON, &stmt.Conditions); err != nil {
			return Statement{}, fmt.Errorf("statement %d: conditions: %w", stmt.ID, err)
		}
	}
	return stmt, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Description,
		&role.BuiltIn, &role.Locked, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
