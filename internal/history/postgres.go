package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forPelevin/sopgen/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sop_runs (
	id                 UUID PRIMARY KEY,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL,
	step_count         INTEGER NOT NULL,
	video              TEXT NOT NULL,
	output_dir         TEXT NOT NULL,
	backend            TEXT NOT NULL,
	model              TEXT NOT NULL,
	processing_seconds DOUBLE PRECISION NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sop_runs_created_at ON sop_runs(created_at DESC);
`

// PostgresStore records runs in a shared database, used by worker deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (r *PostgresStore) Record(ctx context.Context, e types.HistoryEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO sop_runs (
			id, title, description, step_count, video, output_dir,
			backend, model, processing_seconds, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Title, e.Description, e.StepCount, e.Video, e.OutputDir,
		e.Backend, e.Model, e.ProcessingSeconds, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PostgresStore) List(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	query := `
		SELECT id::text, title, description, step_count, video, output_dir,
			backend, model, processing_seconds, created_at
		FROM sop_runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.StepCount, &e.Video, &e.OutputDir,
			&e.Backend, &e.Model, &e.ProcessingSeconds, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}
