package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordGeneration(ctx context.Context, g *models.Generation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generations (id, request_id, label, success, message, caption_text, output_format, source_path, regenerate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		g.ID, g.RequestID, g.Label, g.Success, g.Message, g.CaptionText, g.OutputFormat,
		g.SourcePath, g.Regenerate, g.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGenerations(ctx context.Context, filter GenerationFilter) ([]*models.Generation, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.RequestID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", argIdx))
		args = append(args, filter.RequestID)
		argIdx++
	}
	if filter.Label != "" {
		conditions = append(conditions, fmt.Sprintf("label = $%d", argIdx))
		args = append(args, filter.Label)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM generations WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count generations: %w", err)
	}

	limit, offset := filter.pagination()
	dataQuery := fmt.Sprintf(
		`SELECT id, request_id, label, success, message, caption_text, output_format, source_path, regenerate, created_at
		 FROM generations WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	gens := []*models.Generation{}
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.RequestID, &g.Label, &g.Success, &g.Message, &g.CaptionText,
			&g.OutputFormat, &g.SourcePath, &g.Regenerate, &g.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, &g)
	}
	return gens, total, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
