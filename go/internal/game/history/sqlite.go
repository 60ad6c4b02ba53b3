package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements Repository using an embedded SQLite file
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (and creates if needed) the history database.
// ":memory:" opens a private in-memory database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS game_history (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		duration_sec INTEGER NOT NULL,
		time_remaining_sec INTEGER NOT NULL,
		clues_sent INTEGER NOT NULL,
		outcome TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_game_history_ended ON game_history(ended_at);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create game_history: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Save(ctx context.Context, record GameRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO game_history (id, started_at, ended_at, duration_sec, time_remaining_sec, clues_sent, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			time_remaining_sec = excluded.time_remaining_sec,
			clues_sent = excluded.clues_sent,
			outcome = excluded.outcome`,
		record.ID.String(),
		record.StartedAt.UnixMilli(),
		record.EndedAt.UnixMilli(),
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

func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]GameRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, duration_sec, time_remaining_sec, clues_sent, outcome
		FROM game_history
		ORDER BY ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query game history: %w", err)
	}
	defer rows.Close()

	records := []GameRecord{}
	for rows.Next() {
		var (
			rec       GameRecord
			id        string
			startedAt int64
			endedAt   int64
			outcome   string
		)
		if err := rows.Scan(&id, &startedAt, &endedAt, &rec.DurationSeconds, &rec.TimeRemainingSeconds, &rec.CluesSent, &outcome); err != nil {
			return nil, fmt.Errorf("scan game record: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse game id: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		rec.EndedAt = time.UnixMilli(endedAt).UTC()
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
