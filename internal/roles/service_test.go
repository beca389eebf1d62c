package roles_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/roles"
)

type attachKey struct{ roleID, statementID int64 }
type assignKey struct{ memberID, roleID int64 }
type grantKey struct{ userID, orgID, statementID int64 }

type fakeStore struct {
	nextRoleID      int64
	nextStatementID int64
	roles           map[int64]authz.Role
	statements      map[int64]authz.Effect
	attachments     map[attachKey]bool
	assignments     map[assignKey]bool
	members         map[int64]authz.Holder
	userPolicies    map[grantKey]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:        make(map[int64]authz.Role),
		statements:   make(map[int64]authz.Effect),
		attachments:  make(map[attachKey]bool),
		assignments:  make(map[assignKey]bool),
		members:      make(map[int64]authz.Holder),
		userPolicies: make(map[grantKey]bool),
	}
}

func (f *fakeStore) BuiltinRoleNames(context.Context, int64, int64) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) CustomRoleStatements(context.Context, int64, int64) ([]authz.Statement, error) {
	return nil, nil
}

func (f *fakeStore) DirectStatements(context.Context, int64, int64) ([]authz.Statement, error) {
	return nil, nil
}

func (f *fakeStore) GetRole(_ context.Context, roleID int64) (authz.Role, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return authz.Role{}, authz.ErrNotFound
	}
	return role, nil
}

func (f *fakeStore) ListRoles(_ context.Context, organizationID int64) ([]authz.Role, error) {
	var out []authz.Role
	for _, role := range f.roles {
		if role.OrganizationID == organizationID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRole(_ context.Context, organizationID int64, name, description string) (authz.Role, error) {
	f.nextRoleID++
	role := authz.Role{ID: f.nextRoleID, OrganizationID: organizationID, Name: name, Description: description}
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeStore) CreateBuiltinRole(_ context.Context, organizationID int64, name string, locked bool) (authz.Role, error) {
	f.nextRoleID++
	role := authz.Role{ID: f.nextRoleID, OrganizationID: organizationID, Name: name, BuiltIn: true, Locked: locked}
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeStore) DeleteRole(_ context.Context, roleID int64) error {
	if _, ok := f.roles[roleID]; !ok {
		return authz.ErrNotFound
	}
	delete(f.roles, roleID)
	return nil
}

func (f *fakeStore) CreateStatement(_ context.Context, effect authz.Effect, _, _ []string, _ map[string]string) (int64, error) {
	f.nextStatementID++
	f.statements[f.nextStatementID] = effect
	return f.nextStatementID, nil
}

func (f *fakeStore) DeleteStatement(_ context.Context, statementID int64) error {
	if _, ok := f.statements[statementID]; !ok {
		return authz.ErrNotFound
	}
	delete(f.statements, statementID)
	return nil
}

func (f *fakeStore) AttachStatement(_ context.Context, roleID, statementID int64) error {
	key := attachKey{roleID, statementID}
	if f.attachments[key] {
		return fmt.Errorf("%w: statement already attached", authz.ErrConflict)
	}
	f.attachments[key] = true
	return nil
}

func (f *fakeStore) DetachStatement(_ context.Context, roleID, statementID int64) error {
	key := attachKey{roleID, statementID}
	if !f.attachments[key] {
		return authz.ErrNotFound
	}
	delete(f.attachments, key)
	return nil
}

func (f *fakeStore) RoleStatementCount(_ context.Context, roleID int64) (int64, error) {
	var count int64
	for key := range f.attachments {
		if key.roleID == roleID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) AssignRole(_ context.Context, memberID, roleID, _ int64) error {
	key := assignKey{memberID, roleID}
	if f.assignments[key] {
		return fmt.Errorf("%w: member already holds role", authz.ErrConflict)
	}
	f.assignments[key] = true
	return nil
}

func (f *fakeStore) RevokeRole(_ context.Context, memberID, roleID int64) error {
	key := assignKey{memberID, roleID}
	if !f.assignments[key] {
		return authz.ErrNotFound
	}
	delete(f.assignments, key)
	return nil
}

func (f *fakeStore) MemberPrincipal(_ context.Context, memberID int64) (authz.Holder, error) {
	holder, ok := f.members[memberID]
	if !ok {
		return authz.Holder{}, authz.ErrNotFound
	}
	return holder, nil
}

func (f *fakeStore) GrantUserPolicy(_ context.Context, userID, orgID, statementID, _ int64) error {
	key := grantKey{userID, orgID, statementID}
	if f.userPolicies[key] {
		return fmt.Errorf("%w: policy already granted", authz.ErrConflict)
	}
	f.userPolicies[key] = true
	return nil
}

func (f *fakeStore) RevokeUserPolicy(_ context.Context, userID, orgID, statementID int64) error {
	key := grantKey{userID, orgID, statementID}
	if !f.userPolicies[key] {
		return authz.ErrNotFound
	}
	delete(f.userPolicies, key)
	return nil
}

func (f *fakeStore) RoleHolders(_ context.Context, roleID int64) ([]authz.Holder, error) {
	var holders []authz.Holder
	for key := range f.assignments {
		if key.roleID == roleID {
			holders = append(holders, f.members[key.memberID])
		}
	}
	return holders, nil
}

func (f *fakeStore) StatementHolders(_ context.Context, statementID int64) ([]authz.Holder, error) {
	var holders []authz.Holder
	for key := range f.attachments {
		if key.statementID == statementID {
			roleHolders, _ := f.RoleHolders(context.Background(), key.roleID)
			holders = append(holders, roleHolders...)
		}
	}
	for key := range f.userPolicies {
		if key.statementID == statementID {
			holders = append(holders, authz.Holder{PrincipalID: key.userID, OrganizationID: key.orgID})
		}
	}
	return holders, nil
}

type recordingInvalidator struct {
	pairs []authz.Holder
}

func (i *recordingInvalidator) Invalidate(_ context.Context, principalID, organizationID int64) error {
	i.pairs = append(i.pairs, authz.Holder{PrincipalID: principalID, OrganizationID: organizationID})
	return nil
}

func newService(t *testing.T) (*roles.Service, *fakeStore, *recordingInvalidator) {
	t.Helper()
	store := newFakeStore()
	inv := &recordingInvalidator{}
	return roles.NewService(store, inv, nil), store, inv
}

func TestCreateStatementRejectsMalformedPattern(t *testing.T) {
	svc, store, _ := newService(t)

	_, err := svc.CreateStatement(context.Background(), roles.StatementInput{
		Effect:    "ALLOW",
		Actions:   []string{"*tournament:create"},
		Resources: []string{"organization:5"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, authz.ErrInvalidPolicy)
	assert.Empty(t, store.statements, "nothing persisted on validation failure")
}

func TestCreateStatementRejectsEmptyLists(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateStatement(context.Background(), roles.StatementInput{
		Effect:    "DENY",
		Actions:   nil,
		Resources: []string{"organization:5"},
	})
	assert.ErrorIs(t, err, authz.ErrInvalidPolicy)
}

func TestCreateStatementRejectsUnknownEffect(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateStatement(context.Background(), roles.StatementInput{
		Effect:    "AUDIT",
		Actions:   []string{"tournament:*"},
		Resources: []string{"*"},
	})
	assert.ErrorIs(t, err, authz.ErrInvalidPolicy)
}

func TestDeleteRoleRejectsBuiltinAndLocked(t *testing.T) {
	svc, store, _ := newService(t)
	builtin, err := store.CreateBuiltinRole(context.Background(), 5, authz.RoleAdmin, true)
	require.NoError(t, err)
	locked, err := store.CreateRole(context.Background(), 5, "Legal Hold", "")
	require.NoError(t, err)
	locked.Locked = true
	store.roles[locked.ID] = locked

	err = svc.DeleteRole(context.Background(), builtin.ID)
	assert.ErrorIs(t, err, authz.ErrConflict)

	err = svc.DeleteRole(context.Background(), locked.ID)
	assert.ErrorIs(t, err, authz.ErrLocked)

	_, ok := store.roles[builtin.ID]
	assert.True(t, ok)
}

func TestAttachStatementRejectsBuiltinRole(t *testing.T) {
	svc, store, _ := newService(t)
	builtin, err := store.CreateBuiltinRole(context.Background(), 5, authz.RoleTournamentManager, false)
	require.NoError(t, err)
	statementID, err := svc.CreateStatement(context.Background(), roles.StatementInput{
		Effect: "ALLOW", Actions: []string{"tournament:*"}, Resources: []string{"*"},
	})
	require.NoError(t, err)

	err = svc.AttachStatement(context.Background(), builtin.ID, statementID)
	assert.ErrorIs(t, err, authz.ErrConflict)

	// Structural invariant: built-in roles never gain attachment rows.
	count, err := store.RoleStatementCount(context.Background(), builtin.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAssignRoleDuplicateIsConflict(t *testing.T) {
	svc, store, inv := newService(t)
	role, err := store.CreateRole(context.Background(), 5, "Event Coordinator", "")
	require.NoError(t, err)
	store.members[77] = authz.Holder{PrincipalID: 10, OrganizationID: 5}

	require.NoError(t, svc.AssignRole(context.Background(), 77, role.ID, 1))
	err = svc.AssignRole(context.Background(), 77, role.ID, 1)
	assert.ErrorIs(t, err, authz.ErrConflict)

	require.Len(t, inv.pairs, 1)
	assert.Equal(t, authz.Holder{PrincipalID: 10, OrganizationID: 5}, inv.pairs[0])
}

func TestAssignRoleRejectsCrossOrganizationRole(t *testing.T) {
	svc, store, _ := newService(t)
	role, err := store.CreateRole(context.Background(), 6, "Other Org Role", "")
	require.NoError(t, err)
	store.members[77] = authz.Holder{PrincipalID: 10, OrganizationID: 5}

	err = svc.AssignRole(context.Background(), 77, role.ID, 1)
	assert.ErrorIs(t, err, authz.ErrConflict)
}

func TestRevokeRoleInvalidatesHolder(t *testing.T) {
	svc, store, inv := newService(t)
	role, err := store.CreateRole(context.Background(), 5, "Event Coordinator", "")
	require.NoError(t, err)
	store.members[77] = authz.Holder{PrincipalID: 10, OrganizationID: 5}
	require.NoError(t, svc.AssignRole(context.Background(), 77, role.ID, 1))

	inv.pairs = nil
	require.NoError(t, svc.RevokeRole(context.Background(), 77, role.ID))
	require.Len(t, inv.pairs, 1)
	assert.Equal(t, authz.Holder{PrincipalID: 10, OrganizationID: 5}, inv.pairs[0])
}

func TestDeleteRoleInvalidatesAllHolders(t *testing.T) {
	svc, store, inv := newService(t)
	role, err := store.CreateRole(context.Background(), 5, "Event Coordinator", "")
	require.NoError(t, err)
	store.members[77] = authz.Holder{PrincipalID: 10, OrganizationID: 5}
	store.members[78] = authz.Holder{PrincipalID: 11, OrganizationID: 5}
	require.NoError(t, svc.AssignRole(context.Background(), 77, role.ID, 1))
	require.NoError(t, svc.AssignRole(context.Background(), 78, role.ID, 1))

	inv.pairs = nil
	require.NoError(t, svc.DeleteRole(context.Background(), role.ID))
	assert.Len(t, inv.pairs, 2)
}

func TestGrantAndRevokeUserPolicyInvalidate(t *testing.T) {
	svc, _, inv := newService(t)
	statementID, err := svc.CreateStatement(context.Background(), roles.StatementInput{
		Effect: "DENY", Actions: []string{"tournament:delete"}, Resources: []string{"organization:5"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.GrantUserPolicy(context.Background(), 10, 5, statementID, 1))
	require.NoError(t, svc.RevokeUserPolicy(context.Background(), 10, 5, statementID))
	assert.Len(t, inv.pairs, 2)
}
