package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DecisionEntry is one decision-log record. Every Authorize, Require, and
// Can call emits exactly one entry, allowed or denied.
type DecisionEntry struct {
	PrincipalID    int64
	OrganizationID int64
	Action         string
	Resource       string
	Allowed        bool
	Effect         Effect
	Reason         string
	CacheHit       bool
	DecidedAt      time.Time
}

// DecisionLogger receives decision-log records. Implementations must not
// fail the authorization call; persistence errors are theirs to report.
type DecisionLogger interface {
	LogDecision(ctx context.Context, entry DecisionEntry)
}

// DecisionMetrics counts decisions by effect and cache outcome.
type DecisionMetrics interface {
	ObserveDecision(effect string, cacheHit bool)
}

// Authorizer is the public authorization API. All calls route through the
// decision cache and the engine and emit a decision-log record.
type Authorizer struct {
	engine    *Engine
	cache     *DecisionCache
	decisions DecisionLogger
	metrics   DecisionMetrics
	logger    *slog.Logger
	now       Clock
}

// NewAuthorizer wires the facade. The decision logger and metrics are
// optional; a nil cache disables memoization but not correctness.
func NewAuthorizer(engine *Engine, cache *DecisionCache, decisions DecisionLogger, metrics DecisionMetrics, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{engine: engine, cache: cache, decisions: decisions, metrics: metrics, logger: logger, now: time.Now}
}

// Authorize evaluates the request and returns the decision. Denials are
// decisions, not errors; the only error path is a store failure.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (Decision, error) {
	decision, cacheHit, err := a.decide(ctx, req)
	if err != nil {
		a.logger.Error("authorize",
			slog.Int64("principal", req.Principal.ID),
			slog.Int64("organization", req.OrganizationID),
			slog.String("action", req.Action),
			slog.Any("error", err))
		return Decision{}, err
	}
	a.record(ctx, req, decision, cacheHit)
	return decision, nil
}

// Require evaluates the request and returns ErrForbidden when not
// allowed. Intended for the start of mutating operations.
func (a *Authorizer) Require(ctx context.Context, req Request) error {
	decision, err := a.Authorize(ctx, req)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s %s: %s", ErrForbidden, req.Action, req.Resource, decision.Reason)
	}
	return nil
}

// Can reports whether the request is allowed. Evaluation failures report
// false (fail closed) and are logged; use Authorize when the caller needs
// to distinguish store failures from denials.
func (a *Authorizer) Can(ctx context.Context, req Request) bool {
	decision, err := a.Authorize(ctx, req)
	if err != nil {
		return false
	}
	return decision.Allowed
}

func (a *Authorizer) decide(ctx context.Context, req Request) (Decision, bool, error) {
	// The admin bypass needs no lookups; keep it out of the cache so the
	// cache holds only policy-derived decisions.
	if req.Principal.IsAdmin() || a.cache == nil || len(req.ResourceAttributes) > 0 {
		decision, err := a.engine.Evaluate(ctx, req)
		return decision, false, err
	}
	key := CacheKey{
		PrincipalID:    req.Principal.ID,
		OrganizationID: req.OrganizationID,
		Action:         req.Action,
		Resource:       req.Resource,
	}
	return a.cache.Do(ctx, key, func(ctx context.Context) (Decision, error) {
		return a.engine.Evaluate(ctx, req)
	})
}

func (a *Authorizer) record(ctx context.Context, req Request, decision Decision, cacheHit bool) {
	if a.metrics != nil {
		a.metrics.ObserveDecision(string(decision.Effect), cacheHit)
	}
	entry := DecisionEntry{
		PrincipalID:    req.Principal.ID,
		OrganizationID: req.OrganizationID,
		Action:         req.Action,
		Resource:       req.Resource,
		Allowed:        decision.Allowed,
		Effect:         decision.Effect,
		Reason:         decision.Reason,
		CacheHit:       cacheHit,
		DecidedAt:      a.now().UTC(),
	}
	if a.decisions != nil {
		a.decisions.LogDecision(ctx, entry)
	}
	a.logger.Debug("authorization decision",
		slog.Int64("principal", entry.PrincipalID),
		slog.Int64("organization", entry.OrganizationID),
		slog.String("action", entry.Action),
		slog.String("resource", entry.Resource),
		slog.Bool("allowed", entry.Allowed),
		slog.String("effect", string(entry.Effect)),
		slog.Bool("cache_hit", cacheHit))
}
