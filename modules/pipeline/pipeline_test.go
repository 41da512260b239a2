package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/model"
	"maestro-pipeline-server/modules/common/utils"
	"maestro-pipeline-server/modules/openrouter"
)

const stillDataURL = "data:image/png;base64,c3RpbGw="

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

// stageTransport answers per stage: the director model gets a shot list,
// the image model gets an image payload.
type stageTransport struct {
	cfg    *config.Config
	models []string
}

func (f *stageTransport) ChatCompletions(ctx context.Context, req *openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.models = append(f.models, req.Model)

	switch req.Model {
	case f.cfg.ImageModel:
		body := `{"choices":[{"message":{"images":[{"type":"image_url","image_url":{"url":"` + stillDataURL + `"}}]}}]}`
		var resp openrouter.ChatResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return nil, err
		}
		resp.Raw = []byte(body)
		return &resp, nil

	default:
		content, _ := json.Marshal(`[{"id":1,"description":"Wide establishing"},{"id":2,"description":"Close up"}]`)
		return &openrouter.ChatResponse{
			Choices: []openrouter.Choice{{Message: openrouter.ResponseMessage{Content: content}}},
		}, nil
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *stageTransport) {
	cfg := loadTestConfig(t)
	transport := &stageTransport{cfg: cfg}
	p := NewWithTransport(cfg, transport)
	p.SetLogger(func(string) {})
	return p, transport
}

func TestGenerateShotsThroughPipeline(t *testing.T) {
	p, transport := newTestPipeline(t)

	shots, err := p.GenerateShots(context.Background(), "data:image/jpeg;base64,AAAA", "a chase scene", 5)
	require.NoError(t, err)
	require.Len(t, shots, 5)
	assert.Equal(t, "Wide establishing", shots[0].Text)
	assert.Equal(t, "Close up", shots[1].Text)

	cfg := config.GetConfig()
	require.Len(t, transport.models, 1)
	assert.Equal(t, cfg.DirectorModel, transport.models[0])
}

func TestGenerateOneThroughPipeline(t *testing.T) {
	p, transport := newTestPipeline(t)

	url, err := p.GenerateOne(context.Background(), stillDataURL, "wide shot of the pier")
	require.NoError(t, err)
	assert.Equal(t, stillDataURL, url)

	cfg := config.GetConfig()
	require.Len(t, transport.models, 1)
	assert.Equal(t, cfg.ImageModel, transport.models[0])
}

func TestGenerateAllDelegatesWithIsolation(t *testing.T) {
	p, _ := newTestPipeline(t)

	shots := []model.Shot{
		{ID: 1, Text: "first"},
		{ID: 2, Text: ""},
		{ID: 3, Text: "third"},
	}

	results := p.GenerateAll(context.Background(), stillDataURL, shots, nil, nil)
	require.Len(t, results, 2)
	assert.Equal(t, stillDataURL, results[1].ImageDataURL)
	assert.Equal(t, stillDataURL, results[3].ImageDataURL)
}

func TestAnalyzeContextRejectsEmptyVideo(t *testing.T) {
	p, transport := newTestPipeline(t)

	_, _, err := p.AnalyzeContext(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, transport.models, "no model call without input")
}

func TestBuildStylePreview(t *testing.T) {
	p, _ := newTestPipeline(t)

	img := image.NewRGBA(image.Rect(0, 0, 640, 640))
	for y := 0; y < 640; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	preview, err := p.BuildStylePreview(buf.Bytes())
	require.NoError(t, err)

	mime, raw, err := utils.DecodeDataURL(preview)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), 320)
	assert.LessOrEqual(t, decoded.Bounds().Dy(), 320)
}

func TestBuildStylePreviewRejectsGarbage(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.BuildStylePreview([]byte("not an image"))
	assert.Error(t, err)
}
