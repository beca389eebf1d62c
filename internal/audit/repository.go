package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arenahub/arenahub/internal/authz"
)

// Repository provides PostgreSQL backed persistence for the decision log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one decision record.
func (r *Repository) Insert(ctx context.Context, entry authz.DecisionEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO authz_decisions
			(principal_id, organization_id, action, resource, allowed, effect, reason, cache_hit, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.PrincipalID, entry.OrganizationID, entry.Action, entry.Resource,
		entry.Allowed, string(entry.Effect), entry.Reason, entry.CacheHit, entry.DecidedAt)
	return err
}

// Timeline returns decision records matching the filters, newest first.
func (r *Repository) Timeline(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, principal_id, organization_id, action, resource, allowed, effect, reason, cache_hit, decided_at
		FROM authz_decisions
		WHERE ($1::bigint = 0 OR principal_id = $1)
		  AND ($2::bigint = 0 OR organization_id = $2)
		  AND ($3::timestamptz IS NULL OR decided_at >= $3)
		  AND ($4::timestamptz IS NULL OR decided_at < $4)
		ORDER BY decided_at DESC, id DESC
		LIMIT $5 OFFSET $6`,
		filters.PrincipalID, filters.OrganizationID,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.limit(), filters.offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		var effect string
		if err := rows.Scan(&rec.ID, &rec.PrincipalID, &rec.OrganizationID, &rec.Action,
			&rec.Resource, &rec.Allowed, &effect, &rec.Reason, &rec.CacheHit, &rec.DecidedAt); err != nil {
			return nil, err
		}
		rec.Effect = authz.Effect(effect)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count reports how many records match the filters, ignoring paging.
func (r *Repository) Count(ctx context.Context, filters TimelineFilters) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM authz_decisions
		WHERE ($1::bigint = 0 OR principal_id = $1)
		  AND ($2::bigint = 0 OR organization_id = $2)
		  AND ($3::timestamptz IS NULL OR decided_at >= $3)
		  AND ($4::timestamptz IS NULL OR decided_at < $4)`,
		filters.PrincipalID, filters.OrganizationID,
		nullableTime(filters.From), nullableTime(filters.To)).Scan(&total)
	return total, err
}

// Prune deletes records older than the cutoff and reports how many went.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM authz_decisions WHERE decided_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
