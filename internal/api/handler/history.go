package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/internal/api/response"
	"github.com/kiranshivaraju/insrobot/internal/store"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// GenerationLister defines the interface the history handler depends on.
type GenerationLister interface {
	ListGenerations(ctx context.Context, filter store.GenerationFilter) ([]*models.Generation, int, error)
}

// NewListGenerationsHandler returns an http.HandlerFunc for GET /api/v1/generations.
func NewListGenerationsHandler(s GenerationLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.GenerationFilter{
			Label: q.Get("label"),
			Page:  1,
			Limit: 20,
		}

		if v := q.Get("page"); v != "" {
			page, err := strconv.Atoi(v)
			if err != nil || page < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
				return
			}
			filter.Page = page
		}
		if v := q.Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 1 || limit > 100 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
				return
			}
			filter.Limit = limit
		}
		if v := q.Get("request_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request_id must be a valid UUID", nil)
				return
			}
			filter.RequestID = id
		}

		gens, total, err := s.ListGenerations(r.Context(), filter)
		if err != nil {
			slog.Error("list generations failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Collection(w, gens, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}
