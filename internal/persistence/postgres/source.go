// Package postgres reads activity collections straight from the activity
// service's database.
package postgres

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/domain"
)

const pageSize = 250

// Source is a read-only domain.Source backed by the activities table.
type Source struct {
	pool *pgxpool.Pool
}

// NewSource constructs a Source over pool.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// Connect opens a pool against url and pings it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

type cursor struct {
	startedAt time.Time
	id        string
}

// ListActivities returns every activity the user has, newest first. Rows are
// read in keyset pages inside one read-only transaction.
func (s *Source) ListActivities(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", req.TenantID); err != nil {
		return nil, err
	}

	results := make([]domain.ActivityRecord, 0, pageSize)
	var after *cursor
	for {
		page, next, err := listPage(ctx, tx, req, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("postgres: list activities for %s: %w", req.UserID, err)
		}
		results = append(results, page...)
		if next == nil {
			break
		}
		after = next
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func listPage(ctx context.Context, tx pgx.Tx, req domain.Request, after *cursor, size int) ([]domain.ActivityRecord, *cursor, error) {
	args := []any{req.TenantID, req.UserID, size}
	query := `SELECT activity_id::text, activity_type, duration_min, COALESCE(calories_burned, 0), created_at, started_at
        FROM activities WHERE tenant_id::text=$1 AND user_id=$2`

	if after != nil {
		query += ` AND (started_at, activity_id::text) < ($4, $5)`
		args = append(args, after.startedAt, after.id)
	}
	query += ` ORDER BY started_at DESC, activity_id::text DESC LIMIT $3`

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	page := make([]domain.ActivityRecord, 0, size)
	for rows.Next() {
		var (
			record   domain.ActivityRecord
			kind     string
			duration int
		)
		if err := rows.Scan(&record.ID, &kind, &duration, &record.CaloriesBurned, &record.CreatedAt, &record.StartTime); err != nil {
			return nil, nil, err
		}
		record.Type = domain.ActivityType(strings.ToUpper(kind))
		record.Duration = float64(max(duration, 0))
		if math.IsNaN(record.CaloriesBurned) || record.CaloriesBurned < 0 {
			record.CaloriesBurned = 0
		}
		page = append(page, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if len(page) < size {
		return page, nil, nil
	}
	last := page[len(page)-1]
	return page, &cursor{startedAt: last.StartTime, id: last.ID}, nil
}
