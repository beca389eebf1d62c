// Package audit persists the authorization decision log and serves its
// timeline. Every facade call lands here, allowed or denied.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/arenahub/arenahub/internal/authz"
	"github.com/arenahub/arenahub/internal/shared"
)

// RepositoryPort defines data access methods for decision records.
type RepositoryPort interface {
	Insert(ctx context.Context, entry authz.DecisionEntry) error
	Timeline(ctx context.Context, filters TimelineFilters) ([]Record, error)
	Count(ctx context.Context, filters TimelineFilters) (int, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Record is one persisted decision.
type Record struct {
	ID             int64
	PrincipalID    int64
	OrganizationID int64
	Action         string
	Resource       string
	Allowed        bool
	Effect         authz.Effect
	Reason         string
	CacheHit       bool
	DecidedAt      time.Time
}

// TimelineFilters narrows a timeline query. Zero values mean "any".
type TimelineFilters struct {
	PrincipalID    int64
	OrganizationID int64
	From           time.Time
	To             time.Time
	Page           int
	PageSize       int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (f TimelineFilters) limit() int {
	if f.PageSize <= 0 {
		return defaultPageSize
	}
	if f.PageSize > maxPageSize {
		return maxPageSize
	}
	return f.PageSize
}

func (f TimelineFilters) offset() int {
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return (page - 1) * f.limit()
}

// Service coordinates the decision log.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

var _ authz.DecisionLogger = (*Service)(nil)

// LogDecision persists a decision record. A write failure must not fail
// the authorization call that produced it; it is logged and dropped.
func (s *Service) LogDecision(ctx context.Context, entry authz.DecisionEntry) {
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Warn("persist decision record",
			slog.Int64("principal", entry.PrincipalID),
			slog.String("action", entry.Action),
			slog.Any("error", err))
	}
}

// Timeline returns decision records matching the filters together with
// pagination metadata.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) ([]Record, shared.Pagination, error) {
	records, err := s.repo.Timeline(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(filters.Page, filters.limit(), total), nil
}

// Prune removes records older than the retention window.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()
	removed, err := s.repo.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("decision log pruned",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, nil
}
