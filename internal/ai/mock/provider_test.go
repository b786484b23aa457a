package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/portalpilot/internal/ai"
	"github.com/kiranshivaraju/portalpilot/internal/ai/mock"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.ChatRequest {
	return models.ChatRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "system"},
			{Role: models.RoleUser, Content: "objective"},
		},
	}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
	assert.Equal(t, "mock-v1", p.Model())
}

func TestNewMockProvider_Complete(t *testing.T) {
	p := mock.NewMockProvider()
	reply, err := p.Complete(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Contains(t, reply, `"FLAG_STOP": true`)
}

func TestMockProvider_RecordsRequests(t *testing.T) {
	p := mock.NewMockProvider()
	req := sampleRequest()
	_, _ = p.Complete(context.Background(), req)

	req.Messages[1].Content = "mutated"
	_, _ = p.Complete(context.Background(), req)

	got := p.Requests()
	require.Len(t, got, 2)
	assert.Equal(t, "objective", got[0].Messages[1].Content)
	assert.Equal(t, "mutated", got[1].Messages[1].Content)
}

// --- NewScriptedProvider ---

func TestNewScriptedProvider_RepliesInOrder(t *testing.T) {
	p := mock.NewScriptedProvider("one", "two")

	first, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	second, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "one", first)
	assert.Equal(t, "two", second)
}

func TestNewScriptedProvider_Exhausted(t *testing.T) {
	p := mock.NewScriptedProvider("only")
	_, _ = p.Complete(context.Background(), sampleRequest())

	_, err := p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

// --- NewFailingProvider ---

func TestNewFailingProvider_Name(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	assert.Equal(t, "mock-failing", p.Name())
}

func TestNewFailingProvider_Complete(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	_, err := p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestNewFailingProvider_CustomError(t *testing.T) {
	customErr := errors.New("custom failure")
	p := mock.NewFailingProvider(customErr)

	_, err := p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, customErr)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_Complete(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, sampleRequest())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

// --- Sentinel errors ---

func TestSentinelErrors(t *testing.T) {
	assert.NotNil(t, ai.ErrProviderUnavailable)
	assert.NotNil(t, ai.ErrInferenceTimeout)
	assert.NotNil(t, ai.ErrInvalidResponse)

	assert.False(t, errors.Is(ai.ErrProviderUnavailable, ai.ErrInferenceTimeout))
	assert.False(t, errors.Is(ai.ErrInferenceTimeout, ai.ErrInvalidResponse))
}

func TestMockProvider_NilFunc(t *testing.T) {
	p := &mock.MockProvider{Name_: "nil-test"}

	reply, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestMockProvider_ImplementsAIProvider(t *testing.T) {
	var _ models.AIProvider = mock.NewMockProvider()
}
