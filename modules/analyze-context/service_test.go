package analyzecontext

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/openrouter"
)

func loadTestConfig(t *testing.T) {
	t.Helper()
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	_, err := config.LoadConfig()
	require.NoError(t, err)
}

// recordingTransport answers from a per-model script and keeps the requests.
type recordingTransport struct {
	requests []*openrouter.ChatRequest
	failFor  map[string]error
	content  string
}

func (f *recordingTransport) ChatCompletions(ctx context.Context, req *openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.failFor[req.Model]; ok && err != nil {
		return nil, err
	}
	encoded, _ := json.Marshal(f.content)
	return &openrouter.ChatResponse{
		Choices: []openrouter.Choice{{Message: openrouter.ResponseMessage{Content: encoded}}},
	}, nil
}

func newTestService(transport openrouter.Transport) *Service {
	esc := openrouter.NewEscalator(transport, 0, time.Millisecond)
	esc.SetSleep(func(ctx context.Context, d time.Duration) {})
	svc := NewService(esc)
	svc.SetLogger(func(string) {})
	return svc
}

func TestAnalyzeFramesReturnsTrimmedText(t *testing.T) {
	loadTestConfig(t)

	transport := &recordingTransport{content: "  A rainy rooftop chase at dusk.  "}
	svc := newTestService(transport)

	text, err := svc.AnalyzeFrames(context.Background(), []string{"data:image/jpeg;base64,AAAA"})
	require.NoError(t, err)
	assert.Equal(t, "A rainy rooftop chase at dusk.", text)
}

func TestAnalyzeFramesSendsPromptAndEveryFrame(t *testing.T) {
	loadTestConfig(t)

	transport := &recordingTransport{content: "ok"}
	svc := newTestService(transport)

	frames := []string{
		"data:image/jpeg;base64,AAAA",
		"data:image/jpeg;base64,BBBB",
		"data:image/jpeg;base64,CCCC",
	}
	_, err := svc.AnalyzeFrames(context.Background(), frames)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	parts, ok := transport.requests[0].Messages[0].Content.([]openrouter.ContentPart)
	require.True(t, ok)
	require.Len(t, parts, len(frames)+1)

	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, ContextSystemPrompt, parts[0].Text)
	for i, frame := range frames {
		assert.Equal(t, "image_url", parts[i+1].Type)
		assert.Equal(t, frame, parts[i+1].ImageURL.URL)
	}
}

func TestAnalyzeFramesEscalatesToVisionModel(t *testing.T) {
	loadTestConfig(t)

	cfg := config.GetConfig()
	transport := &recordingTransport{
		content: "A quiet kitchen scene.",
		failFor: map[string]error{cfg.ContextModel: errors.New("model does not accept image input")},
	}
	svc := newTestService(transport)

	text, err := svc.AnalyzeFrames(context.Background(), []string{"data:image/jpeg;base64,AAAA"})
	require.NoError(t, err)
	assert.Equal(t, "A quiet kitchen scene.", text)

	require.Len(t, transport.requests, 2)
	assert.Equal(t, cfg.ContextModel, transport.requests[0].Model)
	assert.Equal(t, cfg.ContextVisionModel, transport.requests[1].Model)
}

func TestAnalyzeFramesRejectsEmptyInput(t *testing.T) {
	loadTestConfig(t)

	transport := &recordingTransport{content: "ok"}
	svc := newTestService(transport)

	_, err := svc.AnalyzeFrames(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, transport.requests)
}

func TestAnalyzeFramesRejectsMissingCredential(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	_, err := config.LoadConfig()
	require.NoError(t, err)

	transport := &recordingTransport{content: "ok"}
	svc := newTestService(transport)

	_, err = svc.AnalyzeFrames(context.Background(), []string{"data:image/jpeg;base64,AAAA"})
	assert.ErrorIs(t, err, openrouter.ErrMissingCredential)
	assert.Empty(t, transport.requests)
}
