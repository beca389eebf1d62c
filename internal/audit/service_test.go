package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenahub/arenahub/internal/audit"
	"github.com/arenahub/arenahub/internal/authz"
)

type fakeRepo struct {
	entries   []authz.DecisionEntry
	insertErr error
	pruned    time.Time
}

func (f *fakeRepo) Insert(_ context.Context, entry authz.DecisionEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRepo) Timeline(context.Context, audit.TimelineFilters) ([]audit.Record, error) {
	out := make([]audit.Record, 0, len(f.entries))
	for i, entry := range f.entries {
		out = append(out, audit.Record{
			ID:          int64(i + 1),
			PrincipalID: entry.PrincipalID,
			Action:      entry.Action,
		})
	}
	return out, nil
}

func (f *fakeRepo) Count(context.Context, audit.TimelineFilters) (int, error) {
	return len(f.entries), nil
}

func (f *fakeRepo) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.pruned = cutoff
	return 3, nil
}

func TestLogDecisionPersists(t *testing.T) {
	repo := &fakeRepo{}
	svc := audit.NewService(repo, nil)

	svc.LogDecision(context.Background(), authz.DecisionEntry{
		PrincipalID: 10, OrganizationID: 5,
		Action: "tournament:create", Resource: "organization:5",
		Allowed: true, Effect: authz.EffectAllow, DecidedAt: time.Now(),
	})
	require.Len(t, repo.entries, 1)
	assert.Equal(t, "tournament:create", repo.entries[0].Action)
}

func TestLogDecisionSwallowsWriteFailures(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("db down")}
	svc := audit.NewService(repo, nil)

	// Must not panic or surface the error to the authorization path.
	svc.LogDecision(context.Background(), authz.DecisionEntry{PrincipalID: 10})
	assert.Empty(t, repo.entries)
}

func TestTimelineReportsPagination(t *testing.T) {
	repo := &fakeRepo{}
	svc := audit.NewService(repo, nil)
	for i := 0; i < 45; i++ {
		svc.LogDecision(context.Background(), authz.DecisionEntry{PrincipalID: int64(i + 1)})
	}

	_, pagination, err := svc.Timeline(context.Background(), audit.TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 20, pagination.PerPage)
	assert.Equal(t, 45, pagination.Total)
	assert.Equal(t, 3, pagination.TotalPages)
}

func TestPruneUsesRetentionWindow(t *testing.T) {
	repo := &fakeRepo{}
	svc := audit.NewService(repo, nil)

	removed, err := svc.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), repo.pruned, 5*time.Second)
}
