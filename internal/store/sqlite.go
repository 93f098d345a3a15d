package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/pkg/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generations (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	label         TEXT NOT NULL,
	success       INTEGER NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	caption_text  TEXT NOT NULL DEFAULT '',
	output_format TEXT NOT NULL DEFAULT '',
	source_path   TEXT NOT NULL DEFAULT '',
	regenerate    INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_request_id ON generations (request_id);
CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations (created_at);
`

// Fixed-width so lexical order in SQLite matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store on a local SQLite file. It is the default
// history store for single-machine deployments.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{`PRAGMA busy_timeout=5000;`, `PRAGMA journal_mode=WAL;`, sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordGeneration(ctx context.Context, g *models.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := withSQLiteRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO generations (id, request_id, label, success, message, caption_text, output_format, source_path, regenerate, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID.String(), g.RequestID.String(), g.Label, g.Success, g.Message, g.CaptionText,
			g.OutputFormat, g.SourcePath, g.Regenerate, g.CreatedAt.UTC().Format(sqliteTimeLayout))
		return err
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGenerations(ctx context.Context, filter GenerationFilter) ([]*models.Generation, int, error) {
	conditions := []string{"1 = 1"}
	var args []any
	if filter.RequestID != uuid.Nil {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID.String())
	}
	if filter.Label != "" {
		conditions = append(conditions, "label = ?")
		args = append(args, filter.Label)
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generations WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count generations: %w", err)
	}

	limit, offset := filter.pagination()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, label, success, message, caption_text, output_format, source_path, regenerate, created_at
		 FROM generations WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	gens := []*models.Generation{}
	for rows.Next() {
		var (
			g         models.Generation
			id, reqID string
			createdAt string
		)
		if err := rows.Scan(&id, &reqID, &g.Label, &g.Success, &g.Message, &g.CaptionText,
			&g.OutputFormat, &g.SourcePath, &g.Regenerate, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan generation: %w", err)
		}
		if g.ID, err = uuid.Parse(id); err != nil {
			return nil, 0, fmt.Errorf("parse generation id: %w", err)
		}
		if g.RequestID, err = uuid.Parse(reqID); err != nil {
			return nil, 0, fmt.Errorf("parse request id: %w", err)
		}
		if g.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, 0, fmt.Errorf("parse created_at: %w", err)
		}
		gens = append(gens, &g)
	}
	return gens, total, rows.Err()
}

func isRetryableSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database is busy") ||
		strings.Contains(msg, "sqlite_busy")
}

func withSQLiteRetry(ctx context.Context, op func() error) error {
	var err error
	backoff := 50 * time.Millisecond
	for i := 0; i < 4; i++ {
		err = op()
		if !isRetryableSQLiteError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

var _ Store = (*SQLiteStore)(nil)
