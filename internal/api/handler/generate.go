package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/internal/api/response"
	"github.com/kiranshivaraju/insrobot/internal/generate"
	"github.com/kiranshivaraju/insrobot/internal/jobqueue"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

var maxBodyBytes int64 = 64 << 20

// Generator defines the interface the generate handler depends on.
type Generator interface {
	Generate(ctx context.Context, images []models.SourceImage) (*generate.BatchResult, error)
}

// Regenerator defines the interface the regenerate handler depends on.
type Regenerator interface {
	Regenerate(ctx context.Context, outputReference string, index int) (*generate.RegenerateResult, error)
}

// StatusReader defines the interface the request status handler depends on.
type StatusReader interface {
	Status(ctx context.Context, requestID uuid.UUID) (*generate.RequestStatus, error)
}

type imageInput struct {
	Data     string `json:"data" validate:"required"`
	Filename string `json:"filename"`
}

type generateRequest struct {
	Images []imageInput `json:"images" validate:"required,min=1,dive"`
}

type regenerateRequest struct {
	Image string `json:"image" validate:"required"`
	Index int    `json:"index" validate:"gte=0"`
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/generate.
func NewGenerateHandler(svc Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		images := make([]models.SourceImage, len(req.Images))
		for i, in := range req.Images {
			data, err := decodeImageData(in.Data)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					fmt.Sprintf("images[%d].data: %v", i, err), nil)
				return
			}
			label := in.Filename
			if label == "" {
				label = fmt.Sprintf("uploaded_image_%d", i+1)
			}
			images[i] = models.SourceImage{Data: data, Label: label}
		}

		result, err := svc.Generate(r.Context(), images)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewRegenerateHandler returns an http.HandlerFunc for POST /api/v1/regenerate.
func NewRegenerateHandler(svc Regenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req regenerateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		result, err := svc.Regenerate(r.Context(), req.Image, req.Index)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewRequestStatusHandler returns an http.HandlerFunc for GET /api/v1/requests/{requestID}.
func NewRequestStatusHandler(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "requestID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "requestID must be a valid UUID", nil)
			return
		}
		status, err := svc.Status(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, status)
	}
}

// decodeBody decodes and validates a JSON body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large", nil)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if details := validationDetails(dst); details != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", details)
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generate.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, generate.ErrSourceNotFound):
		response.Error(w, http.StatusNotFound, "SOURCE_NOT_FOUND",
			"The source image for this output is no longer available", nil)
	case errors.Is(err, generate.ErrRequestNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
	case errors.Is(err, generate.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "PROCESSING_TIMEOUT",
			"Image processing timed out", nil)
	case errors.Is(err, jobqueue.ErrQueueClosed):
		response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
			"The server is shutting down", nil)
	default:
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
