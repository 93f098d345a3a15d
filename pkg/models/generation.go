package models

import (
	"time"

	"github.com/google/uuid"
)

// Generation is the persisted history record of one processed job.
type Generation struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	RequestID    uuid.UUID `db:"request_id"    json:"request_id"`
	Label        string    `db:"label"         json:"label"`
	Success      bool      `db:"success"       json:"success"`
	Message      string    `db:"message"       json:"message"`
	CaptionText  string    `db:"caption_text"  json:"caption_text,omitempty"`
	OutputFormat string    `db:"output_format" json:"output_format,omitempty"`
	SourcePath   string    `db:"source_path"   json:"source_path,omitempty"`
	Regenerate   bool      `db:"regenerate"    json:"regenerate"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}
