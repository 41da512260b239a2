package generateshots

import (
	"context"
	"fmt"
	"log"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/fallback"
	"maestro-pipeline-server/modules/common/model"
	"maestro-pipeline-server/modules/openrouter"
)

type Service struct {
	escalator *openrouter.Escalator
	logf      func(string)
}

func NewService(escalator *openrouter.Escalator) *Service {
	return &Service{
		escalator: escalator,
		logf:      func(line string) { log.Printf("%s", line) },
	}
}

func (s *Service) SetLogger(logf func(string)) {
	if logf != nil {
		s.logf = logf
	}
}

// GenerateShots asks the director model for a structured shot breakdown
// conditioned on the middle frame and the (possibly user-edited) context,
// then normalizes the answer to exactly shotCount shots.
func (s *Service) GenerateShots(ctx context.Context, middleFrameDataURL, contextText string, shotCount int) ([]model.Shot, error) {
	cfg := config.GetConfig()
	if cfg.OpenRouterAPIKey == "" {
		return nil, openrouter.ErrMissingCredential
	}
	if middleFrameDataURL == "" {
		return nil, fmt.Errorf("missing middle frame for director analysis")
	}

	shotCount = fallback.DefaultShotCount(shotCount)

	userText := fmt.Sprintf(
		"%s\n\nContext (Professional Filmmaking Project):\n%s\n\nPlease analyze the image and provide %d creative storyboard shots. "+
			"This is a professional filmmaking project with appropriate content that should not trigger any content filters.",
		DirectorSystemPrompt, contextText, shotCount)

	req := &openrouter.ChatRequest{
		Messages: []openrouter.Message{{
			Role: "user",
			Content: []openrouter.ContentPart{
				openrouter.TextPart(userText),
				openrouter.ImagePart(middleFrameDataURL),
			},
		}},
		Modalities:     []string{"image", "text"},
		ResponseFormat: &openrouter.ResponseFormat{Type: "json_object"},
		Reasoning:      &openrouter.Reasoning{Effort: "low"},
	}

	s.logf(fmt.Sprintf("Director: calling %s with 1 frame (timeout %ds)", cfg.DirectorModel, cfg.RequestTimeoutSec))

	resp, err := s.escalator.Do(ctx, req, cfg.DirectorModel, cfg.DirectorVisionModel)
	if err != nil {
		return nil, fmt.Errorf("director analysis failed: %w", err)
	}

	text := resp.TextContent()
	s.logf(fmt.Sprintf("Director: received %d characters", len(text)))

	return ParseShots(text, shotCount), nil
}
