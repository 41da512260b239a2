package pipeline

import (
	"context"
	"fmt"
	"log"

	analyzecontext "maestro-pipeline-server/modules/analyze-context"
	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/model"
	"maestro-pipeline-server/modules/common/utils"
	generateimage "maestro-pipeline-server/modules/generate-image"
	generateshots "maestro-pipeline-server/modules/generate-shots"
	"maestro-pipeline-server/modules/openrouter"
	"maestro-pipeline-server/modules/video"
)

const (
	contextSecondsPerFrame = 2.0
	contextMinFrames       = 1
	stylePreviewMaxEdge    = 320
)

// Pipeline sequences the three generation stages and owns the transport
// client lifetime. Safe for one logical operation at a time per instance;
// the HTTP layer and the queue worker each drive it from a single
// goroutine per request/job.
type Pipeline struct {
	contextSvc *analyzecontext.Service
	shotsSvc   *generateshots.Service
	imageSvc   *generateimage.Service
	escalator  *openrouter.Escalator
	logf       func(string)
}

// New builds a pipeline over the client/raw transport fallback pair.
func New(cfg *config.Config) *Pipeline {
	return NewWithTransport(cfg, openrouter.NewFallbackTransport(cfg))
}

// NewWithTransport accepts any transport. Tests inject fakes here.
func NewWithTransport(cfg *config.Config, transport openrouter.Transport) *Pipeline {
	p := &Pipeline{
		logf: func(line string) { log.Printf("%s", line) },
	}
	p.rebuild(cfg, transport)
	p.logf(fmt.Sprintf("🔧 Pipeline initialized: context=%s, director=%s, image=%s",
		cfg.ContextModel, cfg.DirectorModel, cfg.ImageModel))
	if cfg.OpenRouterAPIKey == "" {
		p.logf("⚠️ OpenRouter API key not set; generation calls will be rejected")
	}
	return p
}

func (p *Pipeline) rebuild(cfg *config.Config, transport openrouter.Transport) {
	p.escalator = openrouter.NewEscalator(transport, cfg.MaxRetries, cfg.RetryBaseDelay())
	p.contextSvc = analyzecontext.NewService(p.escalator)
	p.shotsSvc = generateshots.NewService(p.escalator)
	p.imageSvc = generateimage.NewService(p.escalator)
	p.SetLogger(p.logf)
}

// Reload replaces the settings and recreates the stateful transport client.
func (p *Pipeline) Reload(cfg *config.Config) {
	p.logf("🔄 Reloading pipeline configuration...")
	p.rebuild(cfg, openrouter.NewFallbackTransport(cfg))
	p.logf(fmt.Sprintf("✅ Configuration reload complete: context=%s, director=%s, image=%s",
		cfg.ContextModel, cfg.DirectorModel, cfg.ImageModel))
}

// SetLogger routes every stage, attempt, and retry line to the sink.
func (p *Pipeline) SetLogger(logf func(string)) {
	if logf == nil {
		return
	}
	p.logf = logf
	p.escalator.SetLogger(logf)
	p.contextSvc.SetLogger(logf)
	p.shotsSvc.SetLogger(logf)
	p.imageSvc.SetLogger(logf)
}

// AnalyzeContext samples frames and fetches the scene paragraph. A sampling
// failure short-circuits with empty outputs and the error; no API call is
// made. When only the context call fails, the middle frame is still
// returned so the caller can retry the stage without resampling.
func (p *Pipeline) AnalyzeContext(ctx context.Context, videoBytes []byte) (string, string, error) {
	p.logf("🎬 Starting context analysis...")

	if len(videoBytes) == 0 {
		return "", "", fmt.Errorf("missing video input")
	}

	n := video.EstimateFrameCount(ctx, videoBytes, contextSecondsPerFrame, contextMinFrames, 0)
	p.logf(fmt.Sprintf("📈 Estimated %d frames needed (%.0fs per frame, min %d)", n, contextSecondsPerFrame, contextMinFrames))

	frames, err := video.SampleFrames(ctx, videoBytes, n)
	if err != nil {
		p.logf(fmt.Sprintf("❌ Frame sampling failed: %v", err))
		return "", "", fmt.Errorf("frame sampling failed: %w", err)
	}
	p.logf(fmt.Sprintf("✅ Sampled %d context frames", len(frames)))

	middleFrame, err := video.SampleMiddleFrame(ctx, videoBytes)
	if err != nil {
		p.logf(fmt.Sprintf("❌ Middle frame sampling failed: %v", err))
		return "", "", fmt.Errorf("middle frame sampling failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", middleFrame, err
	}

	contextText, err := p.contextSvc.AnalyzeFrames(ctx, frames)
	if err != nil {
		p.logf(fmt.Sprintf("❌ Context analysis failed: %v", err))
		return "", middleFrame, err
	}

	p.logf("✅ Context analysis complete")
	return contextText, middleFrame, nil
}

// GenerateShots runs the director stage over the middle frame and the
// (possibly user-edited) context text.
func (p *Pipeline) GenerateShots(ctx context.Context, middleFrameDataURL, contextText string, shotCount int) ([]model.Shot, error) {
	p.logf("🎬 Generating shots from context...")
	shots, err := p.shotsSvc.GenerateShots(ctx, middleFrameDataURL, contextText, shotCount)
	if err != nil {
		p.logf(fmt.Sprintf("❌ Director analysis failed: %v", err))
		return nil, err
	}
	p.logf(fmt.Sprintf("✅ Director analysis complete (%d shots)", len(shots)))
	return shots, nil
}

// GenerateOne produces a single still for one shot.
func (p *Pipeline) GenerateOne(ctx context.Context, styleDataURL, shotText string) (string, error) {
	preview := shotText
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	p.logf(fmt.Sprintf("🎨 Starting image generation for shot: '%s'", preview))

	result, err := p.imageSvc.GenerateOne(ctx, styleDataURL, shotText)
	if err != nil {
		p.logf(fmt.Sprintf("❌ Image generation failed: %v", err))
		return "", err
	}
	p.logf("✅ Image generation completed")
	return result, nil
}

// GenerateAll runs the batch sequentially with per-shot failure isolation
// and cancellation polled between shots.
func (p *Pipeline) GenerateAll(
	ctx context.Context,
	styleDataURL string,
	shots []model.Shot,
	cancelled func() bool,
	onProgress func(shotID int, dataURL string, err error),
) map[int]*generateimage.Result {
	return p.imageSvc.GenerateAll(ctx, styleDataURL, shots, cancelled, onProgress)
}

// BuildStylePreview downscales the style reference into a small JPEG data
// URL for UI display.
func (p *Pipeline) BuildStylePreview(styleBytes []byte) (string, error) {
	p.logf("🖼️ Building style preview...")
	preview, err := utils.CompressToJPEGDataURL(styleBytes, stylePreviewMaxEdge)
	if err != nil {
		return "", fmt.Errorf("failed to build style preview: %w", err)
	}
	p.logf("✅ Style preview built")
	return preview, nil
}
