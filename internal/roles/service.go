package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arenahub/arenahub/internal/authz"
)

// Invalidator drops cached decisions for a (principal, organization)
// pair. Every mutation in this service invalidates synchronously before
// reporting success; a stale allow surviving a revocation is a security
// defect, not a performance nuance.
type Invalidator interface {
	Invalidate(ctx context.Context, principalID, organizationID int64) error
}

// Service enforces the administrative rules over roles, statements,
// assignments, and direct user policies.
type Service struct {
	store  authz.Store
	cache  Invalidator
	logger *slog.Logger
}

// NewService constructs the administrative service.
func NewService(store authz.Store, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// ListRoles returns the roles of an organization.
func (s *Service) ListRoles(ctx context.Context, organizationID int64) ([]authz.Role, error) {
	return s.store.ListRoles(ctx, organizationID)
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, roleID int64) (authz.Role, error) {
	return s.store.GetRole(ctx, roleID)
}

// CreateRole creates a custom role in the organization.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (authz.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return authz.Role{}, fmt.Errorf("%w: role name required", authz.ErrInvalidPolicy)
	}
	role, err := s.store.CreateRole(ctx, in.OrganizationID, name, strings.TrimSpace(in.Description))
	if err != nil {
		return authz.Role{}, err
	}
	s.logger.Info("role created",
		slog.Int64("role", role.ID),
		slog.Int64("organization", role.OrganizationID),
		slog.String("name", role.Name))
	return role, nil
}

// DeleteRole removes a custom role. Built-in and locked roles reject
// deletion. Cached decisions of every holder are invalidated before the
// call returns.
func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.BuiltIn {
		return fmt.Errorf("%w: built-in role %q cannot be deleted", authz.ErrConflict, role.Name)
	}
	if role.Locked {
		return fmt.Errorf("%w: role %q", authz.ErrLocked, role.Name)
	}
	holders, err := s.store.RoleHolders(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx, holders)
}

// CreateStatement validates and persists a policy statement.
func (s *Service) CreateStatement(ctx context.Context, in StatementInput) (int64, error) {
	effect := authz.Effect(in.Effect)
	if effect != authz.EffectAllow && effect != authz.EffectDeny {
		return 0, fmt.Errorf("%w: effect must be ALLOW or DENY", authz.ErrInvalidPolicy)
	}
	if _, err := authz.ParsePatterns(in.Actions); err != nil {
		return 0, fmt.Errorf("actions: %w", err)
	}
	if _, err := authz.ParsePatterns(in.Resources); err != nil {
		return 0, fmt.Errorf("resources: %w", err)
	}
	return s.store.CreateStatement(ctx, effect, in.Actions, in.Resources, in.Conditions)
}

// DeleteStatement removes a statement and invalidates everyone whose
// grants referenced it.
func (s *Service) DeleteStatement(ctx context.Context, statementID int64) error {
	holders, err := s.store.StatementHolders(ctx, statementID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStatement(ctx, statementID); err != nil {
		return err
	}
	return s.invalidate(ctx, holders)
}

// AttachStatement links a statement to a custom role. Built-in roles
// never participate in attachments.
func (s *Service) AttachStatement(ctx context.Context, roleID, statementID int64) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.BuiltIn {
		return fmt.Errorf("%w: built-in role %q cannot carry policy attachments", authz.ErrConflict, role.Name)
	}
	if err := s.store.AttachStatement(ctx, roleID, statementID); err != nil {
		return err
	}
	holders, err := s.store.RoleHolders(ctx, roleID)
	if err != nil {
		return err
	}
	return s.invalidate(ctx, holders)
}

// DetachStatement removes a role-statement link.
func (s *Service) DetachStatement(ctx context.Context, roleID, statementID int64) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.BuiltIn {
		return fmt.Errorf("%w: built-in role %q carries no policy attachments", authz.ErrConflict, role.Name)
	}
	holders, err := s.store.RoleHolders(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.store.DetachStatement(ctx, roleID, statementID); err != nil {
		return err
	}
	return s.invalidate(ctx, holders)
}

// AssignRole grants a role to a membership. The role must belong to the
// member's organization; duplicates surface as Conflict.
func (s *Service) AssignRole(ctx context.Context, memberID, roleID, grantedBy int64) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	holder, err := s.store.MemberPrincipal(ctx, memberID)
	if err != nil {
		return err
	}
	if role.OrganizationID != holder.OrganizationID {
		return fmt.Errorf("%w: role %q belongs to a different organization", authz.ErrConflict, role.Name)
	}
	if err := s.store.AssignRole(ctx, memberID, roleID, grantedBy); err != nil {
		return err
	}
	return s.invalidate(ctx, []authz.Holder{holder})
}

// RevokeRole removes a member-role assignment. The holder's cached
// decisions are dropped before success is reported, so the very next
// authorization call observes the revocation.
func (s *Service) RevokeRole(ctx context.Context, memberID, roleID int64) error {
	holder, err := s.store.MemberPrincipal(ctx, memberID)
	if err != nil {
		return err
	}
	if err := s.store.RevokeRole(ctx, memberID, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx, []authz.Holder{holder})
}

// GrantUserPolicy attaches a statement directly to a principal.
func (s *Service) GrantUserPolicy(ctx context.Context, principalID, organizationID, statementID, grantedBy int64) error {
	if err := s.store.GrantUserPolicy(ctx, principalID, organizationID, statementID, grantedBy); err != nil {
		return err
	}
	return s.invalidate(ctx, []authz.Holder{{PrincipalID: principalID, OrganizationID: organizationID}})
}

// RevokeUserPolicy removes a direct grant.
func (s *Service) RevokeUserPolicy(ctx context.Context, principalID, organizationID, statementID int64) error {
	if err := s.store.RevokeUserPolicy(ctx, principalID, organizationID, statementID); err != nil {
		return err
	}
	return s.invalidate(ctx, []authz.Holder{{PrincipalID: principalID, OrganizationID: organizationID}})
}

func (s *Service) invalidate(ctx context.Context, holders []authz.Holder) error {
	if s.cache == nil {
		return nil
	}
	for _, h := range holders {
		if err := s.cache.Invalidate(ctx, h.PrincipalID, h.OrganizationID); err != nil {
			return fmt.Errorf("roles: invalidate decisions for principal %d: %w", h.PrincipalID, err)
		}
	}
	return nil
}
