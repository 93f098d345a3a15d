package models

import "github.com/google/uuid"

const (
	RequestStatusQueued    = "queued"
	RequestStatusCompleted = "completed"
	RequestStatusTimedOut  = "timed_out"
)

// Job is one image's unit of work. A job is never mutated once it is enqueued.
type Job struct {
	RequestID    uuid.UUID
	SourcePath   string // absolute path of the persisted source image (fresh jobs)
	Filename     string // spool file name, used to rebuild the path for regenerate jobs
	Label        string
	Index        int
	IsRegenerate bool
}

// Outcome is the terminal result of processing one Job.
type Outcome struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Label   string   `json:"filename"`
	Payload *Payload `json:"data,omitempty"`
}

// Payload carries the generated output of a successful Outcome.
type Payload struct {
	CaptionText          string `json:"text_content"`
	OutputReference      string `json:"image"`
	Filename             string `json:"filename"`
	ProvenanceSourcePath string `json:"-"`
}

// FailedOutcome builds a failure Outcome for the given label.
func FailedOutcome(label, message string) Outcome {
	return Outcome{Success: false, Message: message, Label: label}
}
