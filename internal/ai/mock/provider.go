package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/portalpilot/internal/ai"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	Model_       string
	CompleteFunc func(ctx context.Context, req models.ChatRequest) (string, error)

	mu       sync.Mutex
	requests []models.ChatRequest
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return m.Model_ }

func (m *MockProvider) Complete(ctx context.Context, req models.ChatRequest) (string, error) {
	m.mu.Lock()
	req.Messages = append([]models.ChatMessage(nil), req.Messages...)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// Requests returns every request received so far.
func (m *MockProvider) Requests() []models.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatRequest(nil), m.requests...)
}

// NewMockProvider returns a MockProvider that immediately asks to stop.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			return `{"prompt": "", "FLAG_SUCCESS": true, "FLAG_STOP": true}`, nil
		},
	}
}

// NewScriptedProvider returns a MockProvider that replies with each of
// replies in turn and fails once they run out.
func NewScriptedProvider(replies ...string) *MockProvider {
	var (
		mu   sync.Mutex
		next int
	)
	return &MockProvider{
		Name_:  "mock-scripted",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(replies) {
				return "", fmt.Errorf("%w: script exhausted after %d replies", ai.ErrInvalidResponse, len(replies))
			}
			r := replies[next]
			next++
			return r, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		CompleteFunc: func(ctx context.Context, _ models.ChatRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
