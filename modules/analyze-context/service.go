package analyzecontext

import (
	"context"
	"fmt"
	"log"
	"strings"

	"maestro-pipeline-server/modules/common/config"
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

// AnalyzeFrames asks the context model for a short scene paragraph given
// sampled frame data URLs. Escalates to the vision fallback model when the
// primary rejects image input.
func (s *Service) AnalyzeFrames(ctx context.Context, frameDataURLs []string) (string, error) {
	cfg := config.GetConfig()
	if cfg.OpenRouterAPIKey == "" {
		return "", openrouter.ErrMissingCredential
	}
	if len(frameDataURLs) == 0 {
		return "", fmt.Errorf("no frames provided for context analysis")
	}

	content := make([]openrouter.ContentPart, 0, len(frameDataURLs)+1)
	content = append(content, openrouter.TextPart(ContextSystemPrompt))
	for _, url := range frameDataURLs {
		content = append(content, openrouter.ImagePart(url))
	}

	// Payload size helps diagnose connection resets on large frame sets.
	totalBytes := 0
	for _, url := range frameDataURLs {
		totalBytes += len(url)
	}
	s.logf(fmt.Sprintf("Context: payload size ~%.1f KB across %d frames", float64(totalBytes)/1024, len(frameDataURLs)))
	s.logf(fmt.Sprintf("Context: calling %s with %d frames (timeout %ds)", cfg.ContextModel, len(frameDataURLs), cfg.RequestTimeoutSec))

	req := &openrouter.ChatRequest{
		Messages:   []openrouter.Message{{Role: "user", Content: content}},
		Modalities: []string{"image", "text"},
	}

	resp, err := s.escalator.Do(ctx, req, cfg.ContextModel, cfg.ContextVisionModel)
	if err != nil {
		return "", fmt.Errorf("context analysis failed: %w", err)
	}

	text := strings.TrimSpace(resp.TextContent())
	s.logf(fmt.Sprintf("Context: received %d characters", len(text)))
	return text, nil
}
