package jobqueue

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/insrobot/pkg/models"
)

const (
	defaultOutputFormat = "image/jpeg"
	recordTimeout       = 5 * time.Second
)

// Resolver rebuilds the absolute path of a persisted source image from its
// file name. Used for regenerate jobs.
type Resolver interface {
	Resolve(filename string) (string, error)
}

// Recorder persists processed jobs. Failures are logged and never affect the
// outcome delivered to the caller.
type Recorder interface {
	Record(ctx context.Context, job models.Job, outcome models.Outcome) error
}

// Option configures a Worker.
type Option func(*Worker)

// WithRecorder attaches a history recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithTransformTimeout bounds each transform call. Zero means no bound.
func WithTransformTimeout(d time.Duration) Option {
	return func(w *Worker) { w.transformTimeout = d }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// Worker drains the queue one job at a time. Exactly one transform call is in
// flight at any moment.
type Worker struct {
	queue            *Queue
	results          *Results
	provenance       *Provenance
	transformer      models.Transformer
	resolver         Resolver
	recorder         Recorder
	transformTimeout time.Duration
	logger           *slog.Logger

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// NewWorker wires a worker to the shared queue, result store and provenance map.
func NewWorker(q *Queue, results *Results, prov *Provenance, t models.Transformer, resolver Resolver, opts ...Option) *Worker {
	w := &Worker{
		queue:       q,
		results:     results,
		provenance:  prov,
		transformer: t,
		resolver:    resolver,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the worker goroutine. It must be called once.
func (w *Worker) Start() error {
	err := ErrWorkerStarted
	w.startOnce.Do(func() {
		w.started.Store(true)
		err = nil
		go w.run()
	})
	return err
}

// Shutdown enqueues the sentinel and waits for the worker to exit or ctx to end.
// The job in flight, if any, runs to completion first.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.queue.Shutdown()
	if !w.started.Load() {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)
	w.logger.Info("image worker started", "transformer", w.transformer.Name())
	for {
		job := w.queue.Take()
		if job == nil {
			w.logger.Info("image worker received shutdown signal")
			return
		}

		start := time.Now()
		outcome := w.process(job)
		w.results.Append(job.RequestID, outcome)
		w.logger.Info("job processed",
			"request_id", job.RequestID,
			"label", job.Label,
			"index", job.Index,
			"regenerate", job.IsRegenerate,
			"success", outcome.Success,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		w.record(*job, outcome)
	}
}

// process never panics and always yields exactly one outcome for job.
func (w *Worker) process(job *models.Job) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic processing job",
				"error", r,
				"stack", string(debug.Stack()),
				"request_id", job.RequestID,
				"label", job.Label,
			)
			outcome = models.FailedOutcome(job.Label, fmt.Sprintf("error processing image: %v", r))
		}
	}()

	path, err := w.sourcePath(job)
	if err != nil {
		w.logger.Warn("resolve source failed", "request_id", job.RequestID, "label", job.Label, "error", err)
		return models.FailedOutcome(job.Label, fmt.Sprintf("error processing image: %v", err))
	}

	ctx := context.Background()
	if w.transformTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.transformTimeout)
		defer cancel()
	}

	result, err := w.transformer.Transform(ctx, path)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("%w after %s", ErrTransformTimeout, w.transformTimeout)
	}
	return w.classify(job, path, result, err)
}

func (w *Worker) sourcePath(job *models.Job) (string, error) {
	if !job.IsRegenerate {
		if job.SourcePath == "" {
			return "", fmt.Errorf("job has no source path")
		}
		return job.SourcePath, nil
	}
	if w.resolver == nil {
		return "", fmt.Errorf("no resolver configured for regenerate job")
	}
	return w.resolver.Resolve(job.Filename)
}

func (w *Worker) classify(job *models.Job, path string, result *models.TransformResult, err error) models.Outcome {
	switch {
	case err != nil:
		return models.FailedOutcome(job.Label, "image generation failed: "+err.Error())
	case result == nil:
		return models.FailedOutcome(job.Label, MsgInvalidResponse)
	case result.Error != "":
		return models.FailedOutcome(job.Label, "image generation failed: "+result.Error)
	case len(result.OutputData) == 0:
		return models.FailedOutcome(job.Label, MsgNoOutput)
	}

	ref := OutputReference(result.OutputFormat, result.OutputData)
	// Written before the outcome is appended so a woken caller can regenerate at once.
	w.provenance.Put(ref, ProvenanceEntry{SourcePath: path, Label: job.Label})

	return models.Outcome{
		Success: true,
		Message: MsgSuccess,
		Label:   job.Label,
		Payload: &models.Payload{
			CaptionText:          result.CaptionText,
			OutputReference:      ref,
			Filename:             job.Label,
			ProvenanceSourcePath: path,
		},
	}
}

// record never panics; a failing recorder only costs history.
func (w *Worker) record(job models.Job, outcome models.Outcome) {
	if w.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic recording generation",
				"error", r,
				"stack", string(debug.Stack()),
				"request_id", job.RequestID,
				"label", job.Label,
			)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := w.recorder.Record(ctx, job, outcome); err != nil {
		w.logger.Warn("record generation failed", "request_id", job.RequestID, "label", job.Label, "error", err)
	}
}

// OutputReference builds the data URI handed to callers for a generated image.
func OutputReference(format string, data []byte) string {
	if format == "" {
		format = defaultOutputFormat
	}
	return "data:" + format + ";base64," + base64.StdEncoding.EncodeToString(data)
}
