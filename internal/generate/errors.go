package generate

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSourceNotFound  = errors.New("source image not found")
	ErrTimeout         = errors.New("image processing timed out")
	ErrRequestNotFound = errors.New("request not found")
)

const (
	// TimeoutLabel is the label of the synthesized outcome for a timed-out batch.
	TimeoutLabel   = "all"
	MsgTimeout     = "image processing timed out"
	MsgSaveFailure = "failed to save image: "
	MsgQueueClosed = "failed to queue image: "
)
