// Package gemini implements the image transform against the Gemini
// generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/insrobot/internal/config"
	"github.com/kiranshivaraju/insrobot/pkg/models"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("gemini unavailable")

// errUpstream marks replies that should count against the circuit breaker.
var errUpstream = errors.New("gemini upstream failure")

const maxErrorBody = 200

// Transformer implements models.Transformer using Gemini image generation.
type Transformer struct {
	cfg        config.GeminiConfig
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

type apiReply struct {
	status int
	body   []byte
}

// NewTransformer validates cfg and builds a Transformer.
func NewTransformer(cfg config.GeminiConfig) (*Transformer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	failures := uint32(5)
	if cfg.BreakerFailures > 0 {
		failures = uint32(cfg.BreakerFailures)
	}

	t := &Transformer{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return t, nil
}

func (t *Transformer) Name() string { return "gemini" }

// Transform sends the source image, the configured reference images and the
// prompt to Gemini and returns the first generated image.
func (t *Transformer) Transform(ctx context.Context, sourcePath string) (*models.TransformResult, error) {
	source, err := loadInline(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("load source image: %w", err)
	}

	parts := []part{{Text: t.cfg.Prompt}, {InlineData: source}}
	for _, ref := range t.cfg.ReferenceImages {
		img, err := loadInline(ref)
		if err != nil {
			slog.Warn("skipping reference image", "path", ref, "error", err)
			continue
		}
		parts = append(parts, part{InlineData: img})
	}

	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: t.cfg.AspectRatio},
		},
	}

	out, err := t.breaker.Execute(func() (interface{}, error) {
		reply, err := t.post(ctx, payload)
		if err != nil {
			return nil, err
		}
		if reply.status >= http.StatusInternalServerError || reply.status == http.StatusTooManyRequests {
			return reply, errUpstream
		}
		return reply, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil && !errors.Is(err, errUpstream):
		return nil, err
	}

	reply := out.(*apiReply)
	if reply.status != http.StatusOK {
		return &models.TransformResult{Error: statusMessage(reply)}, nil
	}
	return parseReply(reply.body), nil
}

func (t *Transformer) post(ctx context.Context, payload generateContentRequest) (*apiReply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", t.baseURL, url.PathEscape(t.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", t.cfg.APIKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	return &apiReply{status: resp.StatusCode, body: data}, nil
}

func statusMessage(reply *apiReply) string {
	var apiErr errorResponse
	if err := json.Unmarshal(reply.body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Sprintf("api returned status %d: %s", reply.status, apiErr.Error.Message)
	}
	body := strings.TrimSpace(string(reply.body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if body == "" {
		return fmt.Sprintf("api returned status %d", reply.status)
	}
	return fmt.Sprintf("api returned status %d: %s", reply.status, body)
}

func parseReply(body []byte) *models.TransformResult {
	var resp generateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &models.TransformResult{Error: fmt.Sprintf("decode response: %v", err)}
	}

	var caption string
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				caption = p.Text
			}
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return &models.TransformResult{Error: fmt.Sprintf("decode inline image: %v", err)}
			}
			return &models.TransformResult{
				CaptionText:  caption,
				OutputData:   data,
				OutputFormat: p.InlineData.MimeType,
			}
		}
	}
	return &models.TransformResult{Error: "no generated image in response"}
}

func loadInline(path string) (*inlineData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}, nil
}

var _ models.Transformer = (*Transformer)(nil)
