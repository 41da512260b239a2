package generateshots

import (
	"context"
	"encoding/json"
	"strings"
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

type directorTransport struct {
	requests []*openrouter.ChatRequest
	content  string
}

func (f *directorTransport) ChatCompletions(ctx context.Context, req *openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.requests = append(f.requests, req)
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

func TestGenerateShotsNormalizesDirectorOutput(t *testing.T) {
	loadTestConfig(t)

	transport := &directorTransport{
		content: `{"shots":[{"id":1,"description":"Wide over the bridge"},{"id":2,"description":"Close on the map"}]}`,
	}
	svc := newTestService(transport)

	shots, err := svc.GenerateShots(context.Background(), "data:image/jpeg;base64,AAAA", "a heist setup", 5)
	require.NoError(t, err)
	require.Len(t, shots, 5)

	assert.Equal(t, "Wide over the bridge", shots[0].Text)
	assert.Equal(t, "Close on the map", shots[1].Text)
	for _, s := range shots[2:] {
		assert.Equal(t, "", s.Text)
	}
}

func TestGenerateShotsRequestCarriesContextAndFrame(t *testing.T) {
	loadTestConfig(t)

	transport := &directorTransport{content: `[]`}
	svc := newTestService(transport)

	middleFrame := "data:image/jpeg;base64,BBBB"
	_, err := svc.GenerateShots(context.Background(), middleFrame, "night market exterior", 3)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]

	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	require.NotNil(t, req.Reasoning)
	assert.Equal(t, "low", req.Reasoning.Effort)

	parts, ok := req.Messages[0].Content.([]openrouter.ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.True(t, strings.Contains(parts[0].Text, "night market exterior"))
	assert.True(t, strings.Contains(parts[0].Text, "3 creative storyboard shots"))
	assert.Equal(t, middleFrame, parts[1].ImageURL.URL)
}

func TestGenerateShotsRequiresMiddleFrame(t *testing.T) {
	loadTestConfig(t)

	transport := &directorTransport{content: `[]`}
	svc := newTestService(transport)

	_, err := svc.GenerateShots(context.Background(), "", "some context", 5)
	assert.Error(t, err)
	assert.Empty(t, transport.requests)
}

func TestGenerateShotsRejectsMissingCredential(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	_, err := config.LoadConfig()
	require.NoError(t, err)

	transport := &directorTransport{content: `[]`}
	svc := newTestService(transport)

	_, err = svc.GenerateShots(context.Background(), "data:image/jpeg;base64,AAAA", "ctx", 5)
	assert.ErrorIs(t, err, openrouter.ErrMissingCredential)
}
