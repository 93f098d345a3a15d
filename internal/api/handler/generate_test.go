package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/internal/generate"
	"github.com/kiranshivaraju/insrobot/internal/jobqueue"
	"github.com/kiranshivaraju/insrobot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockGenerator struct {
	fn   func(images []models.SourceImage) (*generate.BatchResult, error)
	seen []models.SourceImage
}

func (m *mockGenerator) Generate(_ context.Context, images []models.SourceImage) (*generate.BatchResult, error) {
	m.seen = images
	return m.fn(images)
}

type mockRegenerator struct {
	fn func(ref string, index int) (*generate.RegenerateResult, error)
}

func (m *mockRegenerator) Regenerate(_ context.Context, ref string, index int) (*generate.RegenerateResult, error) {
	return m.fn(ref, index)
}

type mockStatusReader struct {
	fn func(id uuid.UUID) (*generate.RequestStatus, error)
}

func (m *mockStatusReader) Status(_ context.Context, id uuid.UUID) (*generate.RequestStatus, error) {
	return m.fn(id)
}

func echoGenerator() *mockGenerator {
	return &mockGenerator{fn: func(images []models.SourceImage) (*generate.BatchResult, error) {
		res := &generate.BatchResult{RequestID: uuid.New(), Success: true}
		for _, img := range images {
			res.Outcomes = append(res.Outcomes, models.Outcome{
				Success: true,
				Message: "ok",
				Label:   img.Label,
				Payload: &models.Payload{CaptionText: "caption", OutputReference: "data:image/png;base64,AA==", Filename: img.Label},
			})
		}
		return res, nil
	}}
}

// --- generate ---

func TestGenerate_Success(t *testing.T) {
	gen := echoGenerator()
	enc := base64.StdEncoding.EncodeToString(pngHeader)
	body := map[string]any{"images": []map[string]string{
		{"data": enc, "filename": "a.jpg"},
		{"data": "data:image/png;base64," + enc},
	}}

	rec := httptest.NewRecorder()
	NewGenerateHandler(gen).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/generate", body))

	data := parseOK(t, rec)
	assert.Equal(t, true, data["success"])
	assert.NotEmpty(t, data["request_id"])
	results := data["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "a.jpg", first["filename"])
	assert.Equal(t, "caption", first["data"].(map[string]any)["text_content"])

	require.Len(t, gen.seen, 2)
	assert.Equal(t, pngHeader, gen.seen[0].Data)
	assert.Equal(t, pngHeader, gen.seen[1].Data)
	assert.Equal(t, "uploaded_image_2", gen.seen[1].Label)
}

func TestGenerate_PartialFailureStill200(t *testing.T) {
	gen := &mockGenerator{fn: func(images []models.SourceImage) (*generate.BatchResult, error) {
		return &generate.BatchResult{
			RequestID: uuid.New(),
			Success:   false,
			Outcomes:  []models.Outcome{models.FailedOutcome(generate.TimeoutLabel, generate.MsgTimeout)},
		}, nil
	}}
	body := map[string]any{"images": []map[string]string{{"data": base64.StdEncoding.EncodeToString(pngHeader)}}}

	rec := httptest.NewRecorder()
	NewGenerateHandler(gen).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/generate", body))

	data := parseOK(t, rec)
	assert.Equal(t, false, data["success"])
	first := data["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "all", first["filename"])
	assert.Equal(t, "image processing timed out", first["message"])
}

func TestGenerate_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{name: "malformed json", body: "{not json", wantCode: "INVALID_REQUEST"},
		{name: "missing images", body: map[string]any{}, wantCode: "VALIDATION_FAILED"},
		{name: "empty images", body: map[string]any{"images": []any{}}, wantCode: "VALIDATION_FAILED"},
		{name: "missing data", body: map[string]any{"images": []map[string]string{{"filename": "a.jpg"}}}, wantCode: "VALIDATION_FAILED"},
		{name: "bad base64", body: map[string]any{"images": []map[string]string{{"data": "%%%"}}}, wantCode: "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := echoGenerator()
			rec := httptest.NewRecorder()
			NewGenerateHandler(gen).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/generate", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, parseErr(t, rec).Code)
			assert.Nil(t, gen.seen, "service must not be called")
		})
	}
}

func TestGenerate_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", fmt.Errorf("%w: image 1 is not a supported image", generate.ErrInvalidInput), http.StatusBadRequest, "INVALID_REQUEST"},
		{"queue closed", fmt.Errorf("enqueue: %w", jobqueue.ErrQueueClosed), http.StatusServiceUnavailable, "SHUTTING_DOWN"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{fn: func([]models.SourceImage) (*generate.BatchResult, error) { return nil, tt.err }}
			body := map[string]any{"images": []map[string]string{{"data": base64.StdEncoding.EncodeToString(pngHeader)}}}

			rec := httptest.NewRecorder()
			NewGenerateHandler(gen).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/generate", body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			e := parseErr(t, rec)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotContains(t, e.Message, "goroutine")
		})
	}
}

func TestGenerate_BodyTooLarge(t *testing.T) {
	prev := maxBodyBytes
	maxBodyBytes = 1024
	t.Cleanup(func() { maxBodyBytes = prev })

	big := `{"images":[{"data":"` + strings.Repeat("A", 2048) + `"}]}`
	rec := httptest.NewRecorder()
	NewGenerateHandler(echoGenerator()).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/generate", big))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", parseErr(t, rec).Code)
}

// --- regenerate ---

func TestRegenerate_Success(t *testing.T) {
	var gotRef string
	var gotIndex int
	svc := &mockRegenerator{fn: func(ref string, index int) (*generate.RegenerateResult, error) {
		gotRef, gotIndex = ref, index
		return &generate.RegenerateResult{
			RequestID: uuid.New(),
			Success:   true,
			Message:   "ok",
			Index:     index,
			Payload:   &models.Payload{CaptionText: "new caption", OutputReference: "data:image/png;base64,BB==", Filename: "a.jpg"},
		}, nil
	}}

	rec := httptest.NewRecorder()
	body := map[string]any{"image": "data:image/png;base64,AA==", "index": 3}
	NewRegenerateHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/regenerate", body))

	data := parseOK(t, rec)
	assert.Equal(t, "data:image/png;base64,AA==", gotRef)
	assert.Equal(t, 3, gotIndex)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, float64(3), data["index"])
	assert.Equal(t, "a.jpg", data["data"].(map[string]any)["filename"])
}

func TestRegenerate_FailureOmitsPayload(t *testing.T) {
	svc := &mockRegenerator{fn: func(string, int) (*generate.RegenerateResult, error) {
		return &generate.RegenerateResult{RequestID: uuid.New(), Message: "quota exceeded"}, nil
	}}

	rec := httptest.NewRecorder()
	NewRegenerateHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/regenerate", map[string]any{"image": "ref"}))

	data := parseOK(t, rec)
	assert.Equal(t, false, data["success"])
	assert.Equal(t, "quota exceeded", data["message"])
	assert.NotContains(t, data, "data")
}

func TestRegenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"source not found", generate.ErrSourceNotFound, http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{"timeout", fmt.Errorf("wait: %w", generate.ErrTimeout), http.StatusGatewayTimeout, "PROCESSING_TIMEOUT"},
		{"queue closed", jobqueue.ErrQueueClosed, http.StatusServiceUnavailable, "SHUTTING_DOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRegenerator{fn: func(string, int) (*generate.RegenerateResult, error) { return nil, tt.err }}
			rec := httptest.NewRecorder()
			NewRegenerateHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/regenerate", map[string]any{"image": "ref"}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, parseErr(t, rec).Code)
		})
	}
}

func TestRegenerate_MissingImage(t *testing.T) {
	called := false
	svc := &mockRegenerator{fn: func(string, int) (*generate.RegenerateResult, error) {
		called = true
		return nil, nil
	}}
	rec := httptest.NewRecorder()
	NewRegenerateHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/regenerate", map[string]any{"index": 1}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := parseErr(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", e.Code)
	assert.Equal(t, "is required", e.Details["image"])
	assert.False(t, called)
}

// --- status ---

func statusReq(id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/requests/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("requestID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestRequestStatus_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockStatusReader{fn: func(got uuid.UUID) (*generate.RequestStatus, error) {
		return &generate.RequestStatus{RequestID: got, Status: models.RequestStatusQueued, Settled: 1, Expected: 3}, nil
	}}

	rec := httptest.NewRecorder()
	NewRequestStatusHandler(svc).ServeHTTP(rec, statusReq(id.String()))

	data := parseOK(t, rec)
	assert.Equal(t, id.String(), data["request_id"])
	assert.Equal(t, "queued", data["status"])
	assert.Equal(t, float64(1), data["settled"])
	assert.Equal(t, float64(3), data["expected"])
}

func TestRequestStatus_InvalidID(t *testing.T) {
	svc := &mockStatusReader{fn: func(uuid.UUID) (*generate.RequestStatus, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	rec := httptest.NewRecorder()
	NewRequestStatusHandler(svc).ServeHTTP(rec, statusReq("not-a-uuid"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", parseErr(t, rec).Code)
}

func TestRequestStatus_NotFound(t *testing.T) {
	svc := &mockStatusReader{fn: func(uuid.UUID) (*generate.RequestStatus, error) {
		return nil, generate.ErrRequestNotFound
	}}
	rec := httptest.NewRecorder()
	NewRequestStatusHandler(svc).ServeHTTP(rec, statusReq(uuid.NewString()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", parseErr(t, rec).Code)
}
