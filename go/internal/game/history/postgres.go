package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx connection pool
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to Postgres and ensures the schema exists
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &PostgresRepository{pool: pool}
	if err := repo.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) initSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_history (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_sec INTEGER NOT NULL,
			time_remaining_sec INTEGER NOT NULL,
			clues_sent INTEGER NOT NULL,
			outcome TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create game_history: %w", err)
	}
	if _, err := r.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_game_history_ended ON game_history(ended_at DESC)`); err != nil {
		return fmt.Errorf("create game_history index: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, record GameRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO game_history (id, started_at, ended_at, duration_sec, time_remaining_sec, clues_sent, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			time_remaining_sec = EXCLUDED.time_remaining_sec,
			clues_sent = EXCLUDED.clues_sent,
			outcome = EXCLUDED.outcome`,
		record.ID,
		record.StartedAt,
		record.EndedAt,
		record.DurationSeconds,
		record.TimeRemainingSeconds,
		record.CluesSent,
		string(record.Outcome),
	)
	if err != nil {
		return fmt.Errorf("save game record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]GameRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, started_at, ended_at, duration_sec, time_remaining_sec, clues_sent, outcome
		FROM game_history
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query game history: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameRecord, error) {
		var (
			rec     GameRecord
			outcome string
		)
		err := row.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.TimeRemainingSeconds, &rec.CluesSent, &outcome)
		rec.Outcome = Outcome(outcome)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect game records: %w", err)
	}
	return records, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
