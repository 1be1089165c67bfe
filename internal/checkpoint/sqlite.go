package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// SQLiteSaver stores one row per thread holding the checkpoint as JSON.
type SQLiteSaver struct {
	db *sql.DB
}

// NewSQLiteSaver opens (or creates) the database at dbPath.
func NewSQLiteSaver(ctx context.Context, dbPath string) (*SQLiteSaver, error) {
	// WAL lets readers proceed while a checkpoint is written.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteSaver{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteSaver) Close() error {
	return s.db.Close()
}

func (s *SQLiteSaver) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id  TEXT PRIMARY KEY,
		step       INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`)
	return err
}

func (s *SQLiteSaver) Save(ctx context.Context, cp *engine.Checkpoint) error {
	if cp.ThreadID == "" {
		return errNoThread
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	created := cp.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, step, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			step = excluded.step,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		cp.ThreadID, cp.Step, string(data), created.UnixNano(), updated.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", cp.ThreadID, err)
	}
	return nil
}

func (s *SQLiteSaver) Load(ctx context.Context, threadID string) (*engine.Checkpoint, error) {
	var payload string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for %s: %w", threadID, err)
	}
	cp, err := decode([]byte(payload))
	if err != nil {
		return nil, err
	}
	cp.CreatedAt = time.Unix(0, created).UTC()
	return cp, nil
}

func (s *SQLiteSaver) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteSaver) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", threadID, err)
	}
	return nil
}

func (s *SQLiteSaver) Exists(ctx context.Context, threadID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint for %s: %w", threadID, err)
	}
	return n > 0, nil
}
