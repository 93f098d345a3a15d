// Package echo provides an offline transformer that hands the source image
// back unchanged. Useful for local runs without API credentials.
package echo

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/kiranshivaraju/insrobot/internal/config"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// Transformer implements models.Transformer by echoing its input.
type Transformer struct {
	caption string
}

func NewTransformer(cfg config.EchoConfig) *Transformer {
	return &Transformer{caption: cfg.Caption}
}

func (t *Transformer) Name() string { return "echo" }

func (t *Transformer) Transform(ctx context.Context, sourcePath string) (*models.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}
	return &models.TransformResult{
		CaptionText:  t.caption,
		OutputData:   data,
		OutputFormat: http.DetectContentType(data),
	}, nil
}

var _ models.Transformer = (*Transformer)(nil)
