package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface for generation history.
type Store interface {
	Ping(ctx context.Context) error
	RecordGeneration(ctx context.Context, g *models.Generation) error
	ListGenerations(ctx context.Context, filter GenerationFilter) ([]*models.Generation, int, error)
	Close() error
}

type GenerationFilter struct {
	RequestID uuid.UUID
	Label     string
	Page      int
	Limit     int
}

// pagination normalizes page and limit and returns limit and offset.
func (f GenerationFilter) pagination() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
