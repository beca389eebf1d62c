package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for organizations
// and memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrganization fetches an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, kind, created_at FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.Kind, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, authz.ErrNotFound
		}
		return Organization{}, err
	}
	return org, nil
}

// ListOrganizations returns all organizations ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, kind, created_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Kind, &org.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

// CreateOrganization inserts the organization, enrolls the creator as a
// member, materializes every built-in role for the tenant kind, and
// assigns the built-in admin role to the creator, all in one transaction.
func (r *Repository) CreateOrganization(ctx context.Context, name string, creatorID int64) (Organization, error) {
	var org Organization
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO organizations (name, kind) VALUES ($1, 'regular')
			RETURNING id, name, kind, created_at`, name).
			Scan(&org.ID, &org.Name, &org.Kind, &org.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: organization %q already exists", authz.ErrConflict, name)
			}
			return err
		}

		var memberID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO organization_members (organization_id, user_id)
			VALUES ($1, $2) RETURNING id`, org.ID, creatorID).Scan(&memberID)
		if err != nil {
			return err
		}

		adminName := authz.AdminRoleName(authz.TenantRegular)
		for _, roleName := range authz.BuiltinRoleNames(authz.TenantRegular) {
			locked := authz.BuiltinRoleLocked(authz.TenantRegular, roleName)
			var roleID int64
			err = tx.QueryRow(ctx, `
				INSERT INTO roles (organization_id, name, description, is_builtin, is_locked)
				VALUES ($1, $2, '', TRUE, $3) RETURNING id`, org.ID, roleName, locked).Scan(&roleID)
			if err != nil {
				return err
			}
			if roleName == adminName {
				_, err = tx.Exec(ctx, `
					INSERT INTO member_role_assignments (member_id, role_id, granted_by)
					VALUES ($1, $2, $3)`, memberID, roleID, creatorID)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

// AddMember enrolls a user in an organization.
func (r *Repository) AddMember(ctx context.Context, organizationID, userID int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organization_members (organization_id, user_id)
		VALUES ($1, $2) RETURNING id, organization_id, user_id, joined_at`,
		organizationID, userID).
		Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Member{}, fmt.Errorf("%w: user already a member", authz.ErrConflict)
		}
		return Member{}, err
	}
	return m, nil
}

// GetMember resolves a membership by organization and user.
func (r *Repository) GetMember(ctx context.Context, organizationID, userID int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, user_id, joined_at
		FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		organizationID, userID).
		Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, authz.ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// MissingBuiltinRoles lists catalog role names not yet materialized for
// the organization. Used by the backfill job after registry additions.
func (r *Repository) MissingBuiltinRoles(ctx context.Context, org Organization) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name FROM roles WHERE organization_id = $1 AND is_builtin`, org.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	existing := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range authz.BuiltinRoleNames(org.Kind) {
		if _, ok := existing[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
