package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgSnapshotDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSnapshotter mirrors the dead-letter set into dead_letter_entries.
// Each Save replaces the table contents in one transaction.
type PostgresSnapshotter struct {
	db pgSnapshotDB
}

func NewPostgresSnapshotter(pool *pgxpool.Pool) *PostgresSnapshotter {
	if pool == nil {
		panic("deadletter: pgx pool required")
	}
	return &PostgresSnapshotter{db: pool}
}

func newPostgresSnapshotterWithDB(db pgSnapshotDB) *PostgresSnapshotter {
	if db == nil {
		panic("deadletter: db required")
	}
	return &PostgresSnapshotter{db: db}
}

func (s *PostgresSnapshotter) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("deadletter: begin snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM dead_letter_entries`); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("deadletter: clear snapshot: %w", err)
	}
	for _, e := range entries {
		input, err := json.Marshal(e.Input)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("deadletter: marshal input for %s: %w", e.ID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO dead_letter_entries (id, operation, input, error, attempts, created_at, last_attempt_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, e.Operation, input, e.Error, e.Attempts, e.Timestamp, e.LastAttempt)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("deadletter: insert %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("deadletter: commit snapshot: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotter) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, operation, input, error, attempts, created_at, last_attempt_at
		FROM dead_letter_entries
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("deadletter: query snapshot: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			input       []byte
			createdAt   time.Time
			lastAttempt time.Time
		)
		if err := rows.Scan(&e.ID, &e.Operation, &input, &e.Error, &e.Attempts, &createdAt, &lastAttempt); err != nil {
			return nil, fmt.Errorf("deadletter: scan snapshot: %w", err)
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &e.Input); err != nil {
				return nil, fmt.Errorf("deadletter: decode input for %s: %w", e.ID, err)
			}
		}
		e.Timestamp = createdAt.UTC()
		e.LastAttempt = lastAttempt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deadletter: read snapshot: %w", err)
	}
	return entries, nil
}
