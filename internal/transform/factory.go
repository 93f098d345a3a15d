// Package transform builds the image transform backend used by the worker.
package transform

import (
	"fmt"

	"github.com/kiranshivaraju/insrobot/internal/config"
	"github.com/kiranshivaraju/insrobot/internal/transform/echo"
	"github.com/kiranshivaraju/insrobot/internal/transform/gemini"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// NewTransformer constructs the backend selected in config.
// Called once at server startup.
func NewTransformer(cfg config.TransformConfig) (models.Transformer, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewTransformer(cfg.Gemini)
	case "echo":
		return echo.NewTransformer(cfg.Echo), nil
	default:
		return nil, fmt.Errorf("unknown transform provider %q: must be one of gemini, echo", cfg.Provider)
	}
}
