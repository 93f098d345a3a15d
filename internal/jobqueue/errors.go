package jobqueue

import "errors"

var (
	ErrQueueClosed   = errors.New("job queue is shut down")
	ErrWorkerStarted = errors.New("worker already started")
	// ErrTransformTimeout reports a transform call cut off by the worker's per-call timeout.
	ErrTransformTimeout = errors.New("image transform timeout")
)

// Outcome messages produced by the worker for the transform failure buckets.
const (
	MsgInvalidResponse = "image generation failed: invalid response shape"
	MsgNoOutput        = "image generation failed: no output produced"
	MsgSuccess         = "image generated"
)
