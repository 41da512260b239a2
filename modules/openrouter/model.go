package openrouter

import (
	"encoding/json"
	"strings"
)

// ChatRequest is the outbound chat-completions payload. Model is filled in
// by the escalator per attempt; callers leave it empty.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Modalities     []string        `json:"modalities,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Reasoning      *Reasoning      `json:"reasoning,omitempty"`
	Stream         bool            `json:"stream"`
}

// Message content is either a plain string or a []ContentPart.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type Reasoning struct {
	Effort string `json:"effort"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image_url content part from a data URL or remote URL.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// ChatResponse is the inbound payload. Content shape varies by provider
// (string or part list), so it stays raw until a caller asks for a view.
// Raw holds the entire response body for last-resort payload scans.
type ChatResponse struct {
	Choices []Choice        `json:"choices"`
	Raw     json.RawMessage `json:"-"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content json.RawMessage `json:"content"`
	Images  []ResponseImage `json:"images"`
}

// ResponseImage is the provider-specific images array entry.
type ResponseImage struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

// TextContent flattens the first choice's content into plain text. A string
// content is returned as is; a part list has its text fields joined.
func (r *ChatResponse) TextContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	content := r.Choices[0].Message.Content
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Text != "" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return ""
}

// ContentAny decodes the first choice's content into a generic value for
// structural scans. Returns nil when there is nothing to decode.
func (r *ChatResponse) ContentAny() interface{} {
	if len(r.Choices) == 0 || len(r.Choices[0].Message.Content) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(r.Choices[0].Message.Content, &v); err != nil {
		return nil
	}
	return v
}

// RawAny decodes the entire response body into a generic value.
func (r *ChatResponse) RawAny() interface{} {
	if len(r.Raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(r.Raw, &v); err != nil {
		return nil
	}
	return v
}
