// Package generate coordinates batch and regenerate requests: it persists
// source images, fans jobs into the shared queue and collects the outcomes
// the worker produces for each request.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/internal/jobqueue"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

const statusTTL = 30 * time.Minute

// Spooler persists source images and resolves them again by file name.
type Spooler interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
	Resolve(filename string) (string, error)
}

// StatusCache stores the coarse status of a request for polling clients.
type StatusCache interface {
	SetRequestStatus(ctx context.Context, requestID uuid.UUID, status string, ttl time.Duration) error
	GetRequestStatus(ctx context.Context, requestID uuid.UUID) (string, bool, error)
}

type Config struct {
	GenerateTimeout   time.Duration
	RegenerateTimeout time.Duration
	MaxBatch          int
}

// BatchResult is the aggregate answer to a generate request. Outcomes are in
// completion order; callers match them to inputs by label.
type BatchResult struct {
	RequestID uuid.UUID        `json:"request_id"`
	Success   bool             `json:"success"`
	Outcomes  []models.Outcome `json:"results"`
}

// RegenerateResult is the answer to a regenerate request.
type RegenerateResult struct {
	RequestID uuid.UUID       `json:"request_id"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Index     int             `json:"index"`
	Payload   *models.Payload `json:"data,omitempty"`
}

// RequestStatus reports the state of a request for polling clients.
type RequestStatus struct {
	RequestID uuid.UUID `json:"request_id"`
	Status    string    `json:"status"`
	Settled   int       `json:"settled"`
	Expected  int       `json:"expected"`
}

type Service struct {
	queue      *jobqueue.Queue
	results    *jobqueue.Results
	provenance *jobqueue.Provenance
	spool      Spooler
	cache      StatusCache
	cfg        Config
}

// NewService wires the coordinators to the shared queue state. cache may be nil.
func NewService(q *jobqueue.Queue, results *jobqueue.Results, prov *jobqueue.Provenance, sp Spooler, cache StatusCache, cfg Config) *Service {
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 300 * time.Second
	}
	if cfg.RegenerateTimeout <= 0 {
		cfg.RegenerateTimeout = 60 * time.Second
	}
	return &Service{
		queue:      q,
		results:    results,
		provenance: prov,
		spool:      sp,
		cache:      cache,
		cfg:        cfg,
	}
}

// Generate submits every image as one job and waits for all of them, the
// configured timeout, or ctx, whichever comes first. Invalid input is
// rejected before anything is queued. On timeout the outcomes settled so far
// are returned; a single "all" timeout failure stands in only when none were.
func (s *Service) Generate(ctx context.Context, images []models.SourceImage) (*BatchResult, error) {
	exts, err := s.validate(images)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New()
	logger := slog.With("request_id", requestID)
	done := s.results.Register(requestID, len(images))
	s.setStatus(requestID, models.RequestStatusQueued)
	logger.Info("batch submitted", "images", len(images))

	for i, img := range images {
		path, err := s.spool.Save(ctx, img.Data, exts[i])
		if err != nil {
			logger.Warn("persist source image failed", "label", img.Label, "index", i, "error", err)
			s.results.Reject(requestID, models.FailedOutcome(img.Label, MsgSaveFailure+err.Error()))
			continue
		}
		job := &models.Job{
			RequestID:  requestID,
			SourcePath: path,
			Filename:   filepath.Base(path),
			Label:      img.Label,
			Index:      i,
		}
		if err := s.queue.Put(job); err != nil {
			logger.Warn("enqueue failed", "label", img.Label, "index", i, "error", err)
			s.results.Reject(requestID, models.FailedOutcome(img.Label, MsgQueueClosed+err.Error()))
		}
	}

	timer := time.NewTimer(s.cfg.GenerateTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		outcomes := s.results.Drain(requestID)
		settled := len(outcomes)
		if settled == 0 {
			outcomes = append(outcomes, models.FailedOutcome(TimeoutLabel, MsgTimeout))
		}
		s.setStatus(requestID, models.RequestStatusTimedOut)
		logger.Warn("batch timed out", "timeout", s.cfg.GenerateTimeout, "outcomes", settled)
		return &BatchResult{RequestID: requestID, Success: allSucceeded(outcomes), Outcomes: outcomes}, nil
	case <-ctx.Done():
		s.results.Drain(requestID)
		s.setStatus(requestID, models.RequestStatusTimedOut)
		return nil, fmt.Errorf("wait for batch: %w", ctx.Err())
	}

	outcomes := s.results.Drain(requestID)
	s.setStatus(requestID, models.RequestStatusCompleted)
	success := allSucceeded(outcomes)
	logger.Info("batch completed", "outcomes", len(outcomes), "success", success)
	return &BatchResult{RequestID: requestID, Success: success, Outcomes: outcomes}, nil
}

// Regenerate re-runs the transform on the source behind a previously returned
// output reference. index is echoed back for the caller's bookkeeping.
func (s *Service) Regenerate(ctx context.Context, outputReference string, index int) (*RegenerateResult, error) {
	entry, ok := s.provenance.Lookup(outputReference)
	if !ok {
		return nil, fmt.Errorf("%w: unknown output reference", ErrSourceNotFound)
	}
	filename := filepath.Base(entry.SourcePath)
	if _, err := s.spool.Resolve(filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}

	requestID := uuid.New()
	logger := slog.With("request_id", requestID, "label", entry.Label, "index", index)
	done := s.results.Register(requestID, 1)
	s.setStatus(requestID, models.RequestStatusQueued)

	job := &models.Job{
		RequestID:    requestID,
		Filename:     filename,
		Label:        entry.Label,
		Index:        index,
		IsRegenerate: true,
	}
	if err := s.queue.Put(job); err != nil {
		s.results.Drain(requestID)
		return nil, fmt.Errorf("enqueue regenerate: %w", err)
	}
	logger.Info("regenerate submitted")

	timer := time.NewTimer(s.cfg.RegenerateTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.results.Drain(requestID)
		s.setStatus(requestID, models.RequestStatusTimedOut)
		logger.Warn("regenerate timed out", "timeout", s.cfg.RegenerateTimeout)
		return nil, ErrTimeout
	case <-ctx.Done():
		s.results.Drain(requestID)
		s.setStatus(requestID, models.RequestStatusTimedOut)
		return nil, fmt.Errorf("wait for regenerate: %w", ctx.Err())
	}

	outcomes := s.results.Drain(requestID)
	s.setStatus(requestID, models.RequestStatusCompleted)

	result := &RegenerateResult{RequestID: requestID, Index: index}
	if len(outcomes) == 0 {
		result.Message = jobqueue.MsgInvalidResponse
		return result, nil
	}
	o := outcomes[0]
	result.Success = o.Success
	result.Message = o.Message
	if o.Success {
		result.Payload = o.Payload
	}
	logger.Info("regenerate completed", "success", result.Success)
	return result, nil
}

// Status reports the cached status of a request and, while it is still
// pending, how many of its outcomes have settled.
func (s *Service) Status(ctx context.Context, requestID uuid.UUID) (*RequestStatus, error) {
	st := &RequestStatus{RequestID: requestID}
	settled, expected, pending := s.results.Progress(requestID)
	if pending {
		st.Status = models.RequestStatusQueued
		st.Settled, st.Expected = settled, expected
	}
	if s.cache != nil {
		status, found, err := s.cache.GetRequestStatus(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("get request status: %w", err)
		}
		if found {
			st.Status = status
		}
	}
	if st.Status == "" {
		return nil, ErrRequestNotFound
	}
	return st, nil
}

func (s *Service) validate(images []models.SourceImage) ([]string, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images provided", ErrInvalidInput)
	}
	if s.cfg.MaxBatch > 0 && len(images) > s.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: %d images exceeds the limit of %d", ErrInvalidInput, len(images), s.cfg.MaxBatch)
	}
	exts := make([]string, len(images))
	for i, img := range images {
		ext, ok := imageExtension(img.Data)
		if !ok {
			return nil, fmt.Errorf("%w: image %d (%s) is not a supported image", ErrInvalidInput, i+1, img.Label)
		}
		exts[i] = ext
	}
	return exts, nil
}

// setStatus writes through to the cache. Cache failures only cost pollers
// visibility, so they are logged and ignored.
func (s *Service) setStatus(requestID uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.SetRequestStatus(ctx, requestID, status, statusTTL); err != nil {
		slog.Warn("set request status failed", "request_id", requestID, "status", status, "error", err)
	}
}

var sniffedExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func imageExtension(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	ext, ok := sniffedExtensions[http.DetectContentType(data)]
	return ext, ok
}

func allSucceeded(outcomes []models.Outcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}
