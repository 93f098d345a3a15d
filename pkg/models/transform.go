// Package models contains shared data models used across the insrobot codebase.
package models

import "context"

// Transformer is the image transform every generation backend must implement.
// Callers depend on this interface, never on a concrete backend.
type Transformer interface {
	// Transform generates a new image and caption from the image stored at sourcePath.
	// A nil result with a nil error means the backend produced nothing usable.
	Transform(ctx context.Context, sourcePath string) (*TransformResult, error)
	// Name returns the backend identifier (e.g., "gemini", "echo").
	Name() string
}

// TransformResult is the raw output of a Transformer call.
type TransformResult struct {
	CaptionText  string
	OutputData   []byte
	OutputFormat string // MIME type of OutputData, e.g. "image/png"
	Error        string // set when the backend reported an explicit failure
}

// SourceImage is one uploaded image in a generate batch.
type SourceImage struct {
	Data  []byte
	Label string // display name, echoed back in outcomes
}
