package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"maestro-pipeline-server/modules/common/config"
)

const chatCompletionsPath = "/chat/completions"

// ErrMissingCredential rejects generation calls before any network I/O
// when no API key is configured.
var ErrMissingCredential = errors.New("missing OpenRouter API key")

// Transport sends one chat-completions request and returns the parsed
// response. Implementations must be safe for concurrent use.
type Transport interface {
	ChatCompletions(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ClientTransport is the primary strategy: a persistent http.Client with
// connection reuse and the full default header set.
type ClientTransport struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	referer    string
	title      string
}

func NewClientTransport(cfg *config.Config) *ClientTransport {
	return &ClientTransport{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
		baseURL:    cfg.OpenRouterBaseURL,
		apiKey:     cfg.OpenRouterAPIKey,
		referer:    cfg.HTTPReferer,
		title:      cfg.AppTitle,
	}
}

func (t *ClientTransport) ChatCompletions(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	return doChatRequest(ctx, t.httpClient, t.baseURL, t.apiKey, t.referer, t.title, body)
}

// RawTransport is the fallback strategy: a fresh minimal request each call,
// no connection reuse, payload built as a loose map. Survives conditions
// that wedge a pooled client (stale keep-alive connections, proxy resets).
type RawTransport struct {
	baseURL string
	apiKey  string
	referer string
	title   string
	timeout time.Duration
}

func NewRawTransport(cfg *config.Config) *RawTransport {
	return &RawTransport{
		baseURL: cfg.OpenRouterBaseURL,
		apiKey:  cfg.OpenRouterAPIKey,
		referer: cfg.HTTPReferer,
		title:   cfg.AppTitle,
		timeout: cfg.RequestTimeout(),
	}
}

func (t *RawTransport) ChatCompletions(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	payload := map[string]interface{}{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   req.Stream,
	}
	if len(req.Modalities) > 0 {
		payload["modalities"] = req.Modalities
	}
	if req.ResponseFormat != nil {
		payload["response_format"] = req.ResponseFormat
	}
	if req.Reasoning != nil {
		payload["reasoning"] = req.Reasoning
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat payload: %w", err)
	}

	client := &http.Client{Timeout: t.timeout}
	return doChatRequest(ctx, client, t.baseURL, t.apiKey, t.referer, t.title, body)
}

func doChatRequest(ctx context.Context, client *http.Client, baseURL, apiKey, referer, title string, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("HTTP-Referer", referer)
	httpReq.Header.Set("X-Title", title)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completions request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(respBody)
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return nil, fmt.Errorf("chat completions returned status %d: %s", resp.StatusCode, detail)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	chatResp.Raw = respBody

	return &chatResp, nil
}

// FallbackTransport tries the client strategy first and falls back to the
// raw strategy on any failure. The pair counts as one transport invocation
// from the escalator's point of view.
type FallbackTransport struct {
	primary   Transport
	secondary Transport
}

func NewFallbackTransport(cfg *config.Config) *FallbackTransport {
	return &FallbackTransport{
		primary:   NewClientTransport(cfg),
		secondary: NewRawTransport(cfg),
	}
}

func (t *FallbackTransport) ChatCompletions(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := t.primary.ChatCompletions(ctx, req)
	if err == nil {
		return resp, nil
	}
	log.Printf("⚠️ Client transport failed, falling back to raw HTTP: %v", err)
	return t.secondary.ChatCompletions(ctx, req)
}
