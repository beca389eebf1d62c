package orgs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arenahub/arenahub/internal/authz"
)

// RepositoryPort defines data access methods for organizations.
type RepositoryPort interface {
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	CreateOrganization(ctx context.Context, name string, creatorID int64) (Organization, error)
	AddMember(ctx context.Context, organizationID, userID int64) (Member, error)
	GetMember(ctx context.Context, organizationID, userID int64) (Member, error)
	MissingBuiltinRoles(ctx context.Context, org Organization) ([]string, error)
}

// BuiltinMaterializer creates built-in role rows. Satisfied by the authz
// store; used by the backfill path.
type BuiltinMaterializer interface {
	CreateBuiltinRole(ctx context.Context, organizationID int64, name string, locked bool) (authz.Role, error)
}

// Service handles organization lifecycle.
type Service struct {
	repo   RepositoryPort
	store  BuiltinMaterializer
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, store BuiltinMaterializer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, logger: logger}
}

// Get returns one organization.
func (s *Service) Get(ctx context.Context, id int64) (Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// List returns all organizations.
func (s *Service) List(ctx context.Context) ([]Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

// Create provisions a regular organization: built-in roles materialize as
// empty-policy rows and the creator receives the built-in admin role.
func (s *Service) Create(ctx context.Context, in CreateInput) (Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: organization name required", authz.ErrInvalidPolicy)
	}
	org, err := s.repo.CreateOrganization(ctx, name, in.CreatorID)
	if err != nil {
		return Organization{}, err
	}
	s.logger.Info("organization created",
		slog.Int64("organization", org.ID),
		slog.String("name", org.Name),
		slog.Int64("creator", in.CreatorID))
	return org, nil
}

// AddMember enrolls a user.
func (s *Service) AddMember(ctx context.Context, organizationID, userID int64) (Member, error) {
	if _, err := s.repo.GetOrganization(ctx, organizationID); err != nil {
		return Member{}, err
	}
	return s.repo.AddMember(ctx, organizationID, userID)
}

// Member resolves a membership.
func (s *Service) Member(ctx context.Context, organizationID, userID int64) (Member, error) {
	return s.repo.GetMember(ctx, organizationID, userID)
}

// BackfillBuiltinRoles materializes catalog roles added after the
// organization was created. Existing rows are left untouched.
func (s *Service) BackfillBuiltinRoles(ctx context.Context, organizationID int64) (int, error) {
	org, err := s.repo.GetOrganization(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	missing, err := s.repo.MissingBuiltinRoles(ctx, org)
	if err != nil {
		return 0, err
	}
	for _, name := range missing {
		locked := authz.BuiltinRoleLocked(org.Kind, name)
		if _, err := s.store.CreateBuiltinRole(ctx, org.ID, name, locked); err != nil {
			return 0, fmt.Errorf("orgs: backfill role %q: %w", name, err)
		}
		s.logger.Info("built-in role backfilled",
			slog.Int64("organization", org.ID),
			slog.String("role", name))
	}
	return len(missing), nil
}
