package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// Recorder turns worker outcomes into generation history rows.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

// Record persists one processed job. Only the format of the output is kept,
// never the image itself.
func (r *Recorder) Record(ctx context.Context, job models.Job, outcome models.Outcome) error {
	g := &models.Generation{
		ID:         uuid.New(),
		RequestID:  job.RequestID,
		Label:      job.Label,
		Success:    outcome.Success,
		Message:    outcome.Message,
		SourcePath: job.SourcePath,
		Regenerate: job.IsRegenerate,
		CreatedAt:  r.now().UTC(),
	}
	if g.SourcePath == "" {
		g.SourcePath = job.Filename
	}
	if p := outcome.Payload; p != nil {
		g.CaptionText = p.CaptionText
		g.OutputFormat = dataURIFormat(p.OutputReference)
		if p.ProvenanceSourcePath != "" {
			g.SourcePath = p.ProvenanceSourcePath
		}
	}
	return r.store.RecordGeneration(ctx, g)
}

// dataURIFormat extracts the media type from "data:<format>;base64,...".
func dataURIFormat(ref string) string {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return ""
	}
	format, _, ok := strings.Cut(rest, ";")
	if !ok {
		return ""
	}
	return format
}
