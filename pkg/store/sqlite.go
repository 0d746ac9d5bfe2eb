package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// Store manages the SQLite history database.
type Store struct {
	db *sql.DB
}

// NewStore opens the history database at dbPath.
// It enables WAL mode so the CLI can read while the daemon writes.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		poll_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		source TEXT NOT NULL,
		five_hour INTEGER NOT NULL,
		weekly INTEGER NOT NULL,
		five_hour_reset DATETIME,
		weekly_reset DATETIME,
		warning TEXT NOT NULL DEFAULT '',
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at ON snapshots(recorded_at);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}

	return nil
}

// AppendSnapshot inserts rec, assigning an id when it has none.
func (s *Store) AppendSnapshot(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, poll_id, reason, source, five_hour, weekly, five_hour_reset, weekly_reset, warning, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.PollID, rec.Trigger, string(rec.Source), rec.FiveHour, rec.Weekly,
		nullTime(rec.FiveHourReset), nullTime(rec.WeeklyReset), rec.Warning, rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// Record stores a reconciled snapshot; it lets the store act as a poller sink.
func (s *Store) Record(ctx context.Context, pollID, trigger string, snap usage.Snapshot) error {
	return s.AppendSnapshot(ctx, NewRecord(pollID, trigger, snap, time.Now()))
}

// ReadRecent returns up to limit records, newest first.
func (s *Store) ReadRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, reason, source, five_hour, weekly, five_hour_reset, weekly_reset, warning, recorded_at
		FROM snapshots
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var source string
		var fiveHourReset, weeklyReset sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.PollID, &rec.Trigger, &source, &rec.FiveHour, &rec.Weekly,
			&fiveHourReset, &weeklyReset, &rec.Warning, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.Source = usage.Source(source)
		rec.FiveHourReset = timePtr(fiveHourReset)
		rec.WeeklyReset = timePtr(weeklyReset)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return out, nil
}

// Prune deletes records older than before and reports how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE recorded_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
