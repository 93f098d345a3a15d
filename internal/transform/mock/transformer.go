package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// MockTransformer satisfies models.Transformer for testing.
type MockTransformer struct {
	Name_         string
	TransformFunc func(ctx context.Context, sourcePath string) (*models.TransformResult, error)

	calls atomic.Int64
}

func (m *MockTransformer) Name() string { return m.Name_ }

func (m *MockTransformer) Transform(ctx context.Context, sourcePath string) (*models.TransformResult, error) {
	m.calls.Add(1)
	if m.TransformFunc != nil {
		return m.TransformFunc(ctx, sourcePath)
	}
	return nil, nil
}

// Calls returns how many times Transform has been invoked.
func (m *MockTransformer) Calls() int { return int(m.calls.Load()) }

// NewMockTransformer returns a MockTransformer that always succeeds with a
// small PNG-tagged payload and a caption.
func NewMockTransformer() *MockTransformer {
	return &MockTransformer{
		Name_: "mock",
		TransformFunc: func(_ context.Context, sourcePath string) (*models.TransformResult, error) {
			return &models.TransformResult{
				CaptionText:  "Mock caption for " + sourcePath,
				OutputData:   []byte("generated:" + sourcePath),
				OutputFormat: "image/png",
			}, nil
		},
	}
}

// NewFailingTransformer returns a MockTransformer that always returns the given error.
func NewFailingTransformer(err error) *MockTransformer {
	return &MockTransformer{
		Name_: "mock-failing",
		TransformFunc: func(_ context.Context, _ string) (*models.TransformResult, error) {
			return nil, err
		},
	}
}

// NewBlockingTransformer returns a MockTransformer that blocks until release is
// closed or the context is cancelled.
func NewBlockingTransformer(release <-chan struct{}) *MockTransformer {
	return &MockTransformer{
		Name_: "mock-blocking",
		TransformFunc: func(ctx context.Context, _ string) (*models.TransformResult, error) {
			select {
			case <-release:
				return &models.TransformResult{OutputData: []byte("late"), OutputFormat: "image/png"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// Compile-time check that MockTransformer implements Transformer.
var _ models.Transformer = (*MockTransformer)(nil)
