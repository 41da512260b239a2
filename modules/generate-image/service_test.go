package generateimage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/model"
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

// shotTransport answers with an image payload unless the shot text carries
// the failure marker.
type shotTransport struct {
	calls int
}

func (f *shotTransport) ChatCompletions(ctx context.Context, req *openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.calls++

	parts, ok := req.Messages[0].Content.([]openrouter.ContentPart)
	if !ok || len(parts) == 0 {
		return nil, errors.New("unexpected request shape")
	}
	if strings.Contains(parts[0].Text, "FAIL-THIS-SHOT") {
		return nil, errors.New("provider rejected prompt")
	}

	body := `{"choices":[{"message":{"images":[{"type":"image_url","image_url":{"url":"` + testDataURL + `"}}]}}]}`
	var resp openrouter.ChatResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, err
	}
	resp.Raw = []byte(body)
	return &resp, nil
}

func newTestService(transport openrouter.Transport) *Service {
	esc := openrouter.NewEscalator(transport, 0, time.Millisecond)
	esc.SetSleep(func(ctx context.Context, d time.Duration) {})
	svc := NewService(esc)
	svc.SetLogger(func(string) {})
	return svc
}

func TestGenerateAllIsolatesPerShotFailure(t *testing.T) {
	loadTestConfig(t)

	transport := &shotTransport{}
	svc := newTestService(transport)

	shots := []model.Shot{
		{ID: 1, Text: "wide shot of the harbor"},
		{ID: 2, Text: "FAIL-THIS-SHOT close up"},
		{ID: 3, Text: "aerial over the city"},
	}

	results := svc.GenerateAll(context.Background(), testDataURL, shots, nil, nil)
	require.Len(t, results, 3)

	require.NoError(t, results[1].Err)
	assert.Equal(t, testDataURL, results[1].ImageDataURL)

	require.Error(t, results[2].Err)
	assert.Empty(t, results[2].ImageDataURL)

	require.NoError(t, results[3].Err)
	assert.Equal(t, testDataURL, results[3].ImageDataURL)
}

func TestGenerateAllSkipsEmptyShotText(t *testing.T) {
	loadTestConfig(t)

	transport := &shotTransport{}
	svc := newTestService(transport)

	shots := []model.Shot{
		{ID: 1, Text: "opening frame"},
		{ID: 2, Text: "   "},
		{ID: 3, Text: ""},
	}

	results := svc.GenerateAll(context.Background(), testDataURL, shots, nil, nil)
	require.Len(t, results, 1)
	assert.Contains(t, results, 1)
	assert.Equal(t, 1, transport.calls)
}

func TestGenerateAllStopsOnCancellation(t *testing.T) {
	loadTestConfig(t)

	transport := &shotTransport{}
	svc := newTestService(transport)

	shots := []model.Shot{
		{ID: 1, Text: "first"},
		{ID: 2, Text: "second"},
		{ID: 3, Text: "third"},
	}

	done := 0
	cancelled := func() bool { return done >= 1 }
	onProgress := func(shotID int, dataURL string, err error) { done++ }

	results := svc.GenerateAll(context.Background(), testDataURL, shots, cancelled, onProgress)
	require.Len(t, results, 1)
	assert.Contains(t, results, 1)
	assert.Equal(t, 1, transport.calls)
}

func TestGenerateAllReportsProgressPerShot(t *testing.T) {
	loadTestConfig(t)

	svc := newTestService(&shotTransport{})

	shots := []model.Shot{
		{ID: 1, Text: "first"},
		{ID: 2, Text: "FAIL-THIS-SHOT second"},
	}

	var order []int
	var errs []error
	svc.GenerateAll(context.Background(), testDataURL, shots, nil, func(shotID int, dataURL string, err error) {
		order = append(order, shotID)
		errs = append(errs, err)
	})

	assert.Equal(t, []int{1, 2}, order)
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
}

func TestGenerateOneRequiresStyleAndText(t *testing.T) {
	loadTestConfig(t)

	svc := newTestService(&shotTransport{})

	_, err := svc.GenerateOne(context.Background(), "", "some shot")
	assert.Error(t, err)

	_, err = svc.GenerateOne(context.Background(), testDataURL, "   ")
	assert.Error(t, err)
}

func TestGenerateOneRejectsMissingCredential(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	_, err := config.LoadConfig()
	require.NoError(t, err)

	transport := &shotTransport{}
	svc := newTestService(transport)

	_, err = svc.GenerateOne(context.Background(), testDataURL, "a shot")
	assert.ErrorIs(t, err, openrouter.ErrMissingCredential)
	assert.Zero(t, transport.calls, "no network attempt without a credential")
}
