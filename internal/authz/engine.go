package authz

import (
	"context"
	"fmt"
	"log/slog"
)

// Engine evaluates one authorization request against built-in and
// persisted policies. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	store  Reader
	logger *slog.Logger
}

// NewEngine constructs an Engine backed by the given store.
func NewEngine(store Reader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Evaluate produces the decision for a request. Storage failures
// propagate as ErrStoreUnavailable and are never collapsed into a deny.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if req.Principal.IsAdmin() {
		return Decision{Allowed: true, Effect: EffectAllow, Reason: "global admin bypass"}, nil
	}

	statements, err := e.gather(ctx, req.Principal.ID, req.OrganizationID)
	if err != nil {
		return Decision{}, err
	}

	var allowMatches, denyMatches []int64
	for _, stmt := range statements {
		if !statementMatches(stmt, req) {
			continue
		}
		switch stmt.Effect {
		case EffectDeny:
			denyMatches = append(denyMatches, stmt.ID)
		default:
			allowMatches = append(allowMatches, stmt.ID)
		}
	}

	switch {
	case len(denyMatches) > 0:
		return Decision{
			Effect:              EffectDeny,
			MatchedStatementIDs: denyMatches,
			Reason:              fmt.Sprintf("denied by %d matching deny statement(s)", len(denyMatches)),
		}, nil
	case len(allowMatches) > 0:
		return Decision{
			Allowed:             true,
			Effect:              EffectAllow,
			MatchedStatementIDs: allowMatches,
			Reason:              "allowed by matching statement",
		}, nil
	default:
		return Decision{Effect: EffectImplicitDeny, Reason: "no matching statements"}, nil
	}
}

// gather assembles the union of applicable statements: virtual statements
// from held built-in roles, attached statements from held custom roles,
// and direct user policies.
func (e *Engine) gather(ctx context.Context, principalID, organizationID int64) ([]Statement, error) {
	builtinNames, err := e.store.BuiltinRoleNames(ctx, principalID, organizationID)
	if err != nil {
		return nil, storeErr("builtin roles", err)
	}
	statements := BuiltinStatements(KindOf(organizationID), builtinNames)

	custom, err := e.store.CustomRoleStatements(ctx, principalID, organizationID)
	if err != nil {
		return nil, storeErr("custom role statements", err)
	}
	statements = append(statements, custom...)

	direct, err := e.store.DirectStatements(ctx, principalID, organizationID)
	if err != nil {
		return nil, storeErr("direct policies", err)
	}
	return append(statements, direct...), nil
}

func statementMatches(stmt Statement, req Request) bool {
	if !MatchAny(stmt.Actions, req.Action) {
		return false
	}
	if !MatchAny(stmt.Resources, req.Resource) {
		return false
	}
	return conditionsHold(stmt.Conditions, req.ResourceAttributes)
}

// conditionsHold checks the statement's attribute-equality conditions.
// Every key must be present in the caller-supplied attributes with an
// exactly equal value.
func conditionsHold(conditions, attributes map[string]string) bool {
	if len(conditions) == 0 {
		return true
	}
	for key, want := range conditions {
		got, ok := attributes[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
