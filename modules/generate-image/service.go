package generateimage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/model"
	"maestro-pipeline-server/modules/openrouter"
)

// Result is one per-shot outcome. Either ImageDataURL or Err is set.
type Result struct {
	ShotID       int
	ImageDataURL string
	CreatedAt    time.Time
	Err          error
}

type Service struct {
	escalator *openrouter.Escalator
	extractor *Extractor
	logf      func(string)

	// resultsMu guards the batch result map; callers may also launch
	// single-shot generations concurrently.
	resultsMu sync.Mutex
}

func NewService(escalator *openrouter.Escalator) *Service {
	return &Service{
		escalator: escalator,
		extractor: NewExtractor(),
		logf:      func(line string) { log.Printf("%s", line) },
	}
}

func (s *Service) SetLogger(logf func(string)) {
	if logf != nil {
		s.logf = logf
	}
}

// GenerateOne requests one still from the image model conditioned on the
// style reference and the shot description, and extracts the image payload.
// The image model has no vision fallback; retries stay on one model.
func (s *Service) GenerateOne(ctx context.Context, styleDataURL, shotText string) (string, error) {
	cfg := config.GetConfig()
	if cfg.OpenRouterAPIKey == "" {
		return "", openrouter.ErrMissingCredential
	}
	if styleDataURL == "" {
		return "", fmt.Errorf("missing style image")
	}
	if strings.TrimSpace(shotText) == "" {
		return "", fmt.Errorf("missing shot description")
	}

	req := &openrouter.ChatRequest{
		Messages: []openrouter.Message{{
			Role: "user",
			Content: []openrouter.ContentPart{
				openrouter.TextPart(fmt.Sprintf("%s\n\nInstruction: %s", ImageSystemPrompt, shotText)),
				openrouter.ImagePart(styleDataURL),
			},
		}},
		Modalities: []string{"image", "text"},
	}

	s.logf(fmt.Sprintf("Images: calling %s", cfg.ImageModel))

	resp, err := s.escalator.Do(ctx, req, cfg.ImageModel, "")
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}

	dataURL, err := s.extractor.ExtractImageDataURL(resp)
	if err != nil {
		return "", err
	}

	s.logf(fmt.Sprintf("Images: received image data url length=%d", len(dataURL)))
	return dataURL, nil
}

// GenerateAll runs shots sequentially in the given order. Per-shot failures
// are recorded against their id and the next shot proceeds; shots with
// empty text are skipped; cancellation is polled between shots. onProgress
// (optional) fires after each shot with its outcome.
func (s *Service) GenerateAll(
	ctx context.Context,
	styleDataURL string,
	shots []model.Shot,
	cancelled func() bool,
	onProgress func(shotID int, dataURL string, err error),
) map[int]*Result {
	results := make(map[int]*Result)

	for _, shot := range shots {
		if cancelled != nil && cancelled() {
			s.logf(fmt.Sprintf("Batch cancelled before shot %d", shot.ID))
			break
		}
		if strings.TrimSpace(shot.Text) == "" {
			continue
		}

		dataURL, err := s.GenerateOne(ctx, styleDataURL, shot.Text)

		s.resultsMu.Lock()
		if err != nil {
			results[shot.ID] = &Result{ShotID: shot.ID, Err: err}
		} else {
			results[shot.ID] = &Result{ShotID: shot.ID, ImageDataURL: dataURL, CreatedAt: time.Now()}
		}
		s.resultsMu.Unlock()

		if err != nil {
			s.logf(fmt.Sprintf("Shot %d failed: %v", shot.ID, err))
		}
		if onProgress != nil {
			onProgress(shot.ID, dataURL, err)
		}
	}

	return results
}
