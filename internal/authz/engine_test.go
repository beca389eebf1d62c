package authz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenahub/arenahub/internal/authz"
)

type grantKey struct {
	principalID    int64
	organizationID int64
}

// stubReader serves canned grants per (principal, organization).
type stubReader struct {
	builtin map[grantKey][]string
	custom  map[grantKey][]authz.Statement
	direct  map[grantKey][]authz.Statement
	err     error
}

func (s *stubReader) BuiltinRoleNames(_ context.Context, principalID, organizationID int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.builtin[grantKey{principalID, organizationID}], nil
}

func (s *stubReader) CustomRoleStatements(_ context.Context, principalID, organizationID int64) ([]authz.Statement, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.custom[grantKey{principalID, organizationID}], nil
}

func (s *stubReader) DirectStatements(_ context.Context, principalID, organizationID int64) ([]authz.Statement, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.direct[grantKey{principalID, organizationID}], nil
}

func statement(id int64, effect authz.Effect, actions, resources []string) authz.Statement {
	stmt := authz.Statement{ID: id, Effect: effect}
	for _, a := range actions {
		stmt.Actions = append(stmt.Actions, authz.MustPattern(a))
	}
	for _, r := range resources {
		stmt.Resources = append(stmt.Resources, authz.MustPattern(r))
	}
	return stmt
}

func TestEvaluateGlobalAdminBypass(t *testing.T) {
	// A failing store must not matter: the bypass performs no lookups.
	engine := authz.NewEngine(&stubReader{err: errors.New("db down")}, nil)

	decision, err := engine.Evaluate(context.Background(), authz.Request{
		Principal:      authz.Principal{ID: 1, GlobalRole: authz.GlobalRoleAdmin},
		Action:         "tournament:delete",
		Resource:       "organization:5",
		OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, authz.EffectAllow, decision.Effect)
	assert.Equal(t, "global admin bypass", decision.Reason)
}

func TestEvaluateBuiltinTournamentManager(t *testing.T) {
	store := &stubReader{builtin: map[grantKey][]string{
		{10, 5}: {authz.RoleTournamentManager},
	}}
	engine := authz.NewEngine(store, nil)
	principal := authz.Principal{ID: 10, GlobalRole: authz.GlobalRoleUser}

	decision, err := engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "tournament:create", Resource: "organization:5", OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "member:remove", Resource: "organization:5", OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, authz.EffectImplicitDeny, decision.Effect)
}

func TestEvaluateDenyOverridesAllow(t *testing.T) {
	store := &stubReader{custom: map[grantKey][]authz.Statement{
		{11, 5}: {
			statement(100, authz.EffectAllow, []string{"tournament:*"}, []string{"organization:5"}),
			statement(101, authz.EffectDeny, []string{"tournament:delete"}, []string{"organization:5"}),
		},
	}}
	engine := authz.NewEngine(store, nil)
	principal := authz.Principal{ID: 11, GlobalRole: authz.GlobalRoleUser}

	decision, err := engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "tournament:create", Resource: "organization:5", OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, []int64{100}, decision.MatchedStatementIDs)

	decision, err = engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "tournament:delete", Resource: "organization:5", OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, authz.EffectDeny, decision.Effect)
	assert.Equal(t, []int64{101}, decision.MatchedStatementIDs)
}

func TestEvaluateImplicitDenyWithoutGrants(t *testing.T) {
	engine := authz.NewEngine(&stubReader{}, nil)

	decision, err := engine.Evaluate(context.Background(), authz.Request{
		Principal:      authz.Principal{ID: 12, GlobalRole: authz.GlobalRoleUser},
		Action:         "tournament:create",
		Resource:       "organization:5",
		OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, authz.EffectImplicitDeny, decision.Effect)
}

func TestEvaluateSystemOrganizationDelegation(t *testing.T) {
	store := &stubReader{builtin: map[grantKey][]string{}}
	engine := authz.NewEngine(store, nil)
	principal := authz.Principal{ID: 13, GlobalRole: authz.GlobalRoleUser}
	req := authz.Request{
		Principal: principal, Action: "system:view_users", Resource: "system", OrganizationID: authz.SystemOrgID,
	}

	decision, err := engine.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Granting the built-in User Manager role in the system organization
	// enables exactly the catalog actions, nothing more.
	store.builtin = map[grantKey][]string{
		{13, authz.SystemOrgID}: {authz.RoleUserManager},
	}

	decision, err = engine.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	req.Action = "system:create_organization"
	decision, err = engine.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateSystemRoleNamesDoNotLeakIntoRegularTenants(t *testing.T) {
	// The registry is keyed by tenant kind: a role named like a system
	// catalog entry grants nothing inside a regular organization.
	store := &stubReader{builtin: map[grantKey][]string{
		{14, 5}: {authz.RoleUserManager},
	}}
	engine := authz.NewEngine(store, nil)

	decision, err := engine.Evaluate(context.Background(), authz.Request{
		Principal:      authz.Principal{ID: 14, GlobalRole: authz.GlobalRoleUser},
		Action:         "system:view_users",
		Resource:       "system",
		OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateConditionsRequireExactEquality(t *testing.T) {
	stmt := statement(200, authz.EffectAllow, []string{"tournament:update"}, []string{"tournament:*"})
	stmt.Conditions = map[string]string{"status": "draft"}
	store := &stubReader{direct: map[grantKey][]authz.Statement{
		{15, 5}: {stmt},
	}}
	engine := authz.NewEngine(store, nil)
	principal := authz.Principal{ID: 15, GlobalRole: authz.GlobalRoleUser}

	decision, err := engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "tournament:update", Resource: "tournament:42", OrganizationID: 5,
		ResourceAttributes: map[string]string{"status": "draft"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "tournament:update", Resource: "tournament:42", OrganizationID: 5,
		ResourceAttributes: map[string]string{"status": "published"},
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Missing attribute fails the condition rather than matching vacuously.
	decision, err = engine.Evaluate(context.Background(), authz.Request{
		Principal: principal, Action: "tournament:update", Resource: "tournament:42", OrganizationID: 5,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateStoreErrorPropagates(t *testing.T) {
	engine := authz.NewEngine(&stubReader{err: errors.New("connection refused")}, nil)

	_, err := engine.Evaluate(context.Background(), authz.Request{
		Principal:      authz.Principal{ID: 16, GlobalRole: authz.GlobalRoleUser},
		Action:         "tournament:create",
		Resource:       "organization:5",
		OrganizationID: 5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, authz.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, authz.ErrForbidden)
}
