package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arenahub/arenahub/internal/audit"
	jobmetrics "github.com/arenahub/arenahub/internal/jobs"
	"github.com/arenahub/arenahub/internal/orgs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDecisionLogPrune removes decision-log rows older than the
	// configured retention window.
	TaskDecisionLogPrune = "authz:prune_decisions"
	// TaskBackfillBuiltinRoles materializes missing built-in roles for
	// one organization, or for all when no ID is given.
	TaskBackfillBuiltinRoles = "authz:backfill_builtin_roles"
)

// BackfillPayload scopes a backfill run. A zero OrganizationID means
// every organization.
type BackfillPayload struct {
	OrganizationID int64 `json:"organization_id"`
}

// NewDecisionLogPruneTask constructs the retention task.
func NewDecisionLogPruneTask() *asynq.Task {
	return asynq.NewTask(TaskDecisionLogPrune, nil)
}

// NewBackfillBuiltinRolesTask constructs a backfill task.
func NewBackfillBuiltinRolesTask(payload BackfillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackfillBuiltinRoles, data), nil
}

// NewDecisionLogPruneHandler processes TaskDecisionLogPrune tasks.
func NewDecisionLogPruneHandler(service *audit.Service, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("prune_decisions")
		removed, err := service.Prune(ctx, retention)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("pruned decision log", slog.Int64("removed", removed))
		return tracker.End(nil)
	}
}

// NewBackfillBuiltinRolesHandler processes TaskBackfillBuiltinRoles tasks.
func NewBackfillBuiltinRolesHandler(service *orgs.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("backfill_builtin_roles")
		var payload BackfillPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				_ = tracker.End(err)
				return asynq.SkipRetry
			}
		}
		if payload.OrganizationID > 0 {
			created, err := service.BackfillBuiltinRoles(ctx, payload.OrganizationID)
			if err != nil {
				return tracker.End(err)
			}
			logger.Info("backfilled built-in roles",
				slog.Int64("organization_id", payload.OrganizationID),
				slog.Int("created", created))
			return tracker.End(nil)
		}
		organizations, err := service.List(ctx)
		if err != nil {
			return tracker.End(err)
		}
		for _, org := range organizations {
			created, err := service.BackfillBuiltinRoles(ctx, org.ID)
			if err != nil {
				return tracker.End(err)
			}
			if created > 0 {
				logger.Info("backfilled built-in roles",
					slog.Int64("organization_id", org.ID),
					slog.Int("created", created))
			}
		}
		return tracker.End(nil)
	}
}
