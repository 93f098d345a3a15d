package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/internal/store"
	"github.com/kiranshivaraju/insrobot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	filter store.GenerationFilter
	gens   []*models.Generation
	total  int
	err    error
	called bool
}

func (m *mockLister) ListGenerations(_ context.Context, f store.GenerationFilter) ([]*models.Generation, int, error) {
	m.called = true
	m.filter = f
	return m.gens, m.total, m.err
}

func TestListGenerations_Success(t *testing.T) {
	lister := &mockLister{
		gens: []*models.Generation{
			{ID: uuid.New(), RequestID: uuid.New(), Label: "a.jpg", Success: true, Message: "ok", CreatedAt: time.Now()},
		},
		total: 45,
	}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/generations?page=2&limit=20&label=a.jpg", nil)
	NewListGenerationsHandler(lister).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Page    int  `json:"page"`
			Limit   int  `json:"limit"`
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "a.jpg", env.Data[0]["label"])
	assert.Equal(t, 2, env.Meta.Page)
	assert.Equal(t, 45, env.Meta.Total)
	assert.True(t, env.Meta.HasNext)

	assert.Equal(t, "a.jpg", lister.filter.Label)
	assert.Equal(t, 2, lister.filter.Page)
	assert.Equal(t, 20, lister.filter.Limit)
}

func TestListGenerations_Defaults(t *testing.T) {
	lister := &mockLister{}
	rec := httptest.NewRecorder()
	NewListGenerationsHandler(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, lister.filter.Page)
	assert.Equal(t, 20, lister.filter.Limit)
	assert.Equal(t, uuid.Nil, lister.filter.RequestID)
}

func TestListGenerations_RequestIDFilter(t *testing.T) {
	id := uuid.New()
	lister := &mockLister{}
	rec := httptest.NewRecorder()
	NewListGenerationsHandler(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generations?request_id="+id.String(), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, lister.filter.RequestID)
}

func TestListGenerations_InvalidParams(t *testing.T) {
	for _, q := range []string{"page=0", "page=abc", "limit=0", "limit=101", "request_id=nope"} {
		t.Run(q, func(t *testing.T) {
			lister := &mockLister{}
			rec := httptest.NewRecorder()
			NewListGenerationsHandler(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generations?"+q, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", parseErr(t, rec).Code)
			assert.False(t, lister.called)
		})
	}
}

func TestListGenerations_StoreError(t *testing.T) {
	lister := &mockLister{err: errors.New("db down")}
	rec := httptest.NewRecorder()
	NewListGenerationsHandler(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generations", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	e := parseErr(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", e.Code)
	assert.NotContains(t, e.Message, "db down")
}
