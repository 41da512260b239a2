package generateimage

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"maestro-pipeline-server/modules/common/utils"
	"maestro-pipeline-server/modules/openrouter"
)

// ErrNoImage means no image payload was found anywhere in the response.
// Fatal for the single shot, not for the batch.
var ErrNoImage = errors.New("no image returned by provider")

const (
	remoteFetchTimeout = 30 * time.Second

	// maxScanDepth bounds the last-resort recursive scan so a pathological
	// response cannot recurse unboundedly.
	maxScanDepth = 12
)

// embeddedTokenDelimiters end an inline data:image token embedded in a
// longer string.
var embeddedTokenDelimiters = []string{"\n", " ", ")", "]", "\"", "'"}

// Extractor recovers exactly one generated image from a completion
// response of unknown shape.
type Extractor struct {
	httpClient *http.Client
}

func NewExtractor() *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: remoteFetchTimeout},
	}
}

// ExtractImageDataURL searches the response in a fixed order: the
// provider-specific images array, the structured content parts, the plain
// string content, and finally an unrestricted bounded-depth scan of the
// whole response. Remote URLs are fetched and re-encoded as data URLs with
// the server-reported content type; a fetch failure yields no image rather
// than an escalation.
func (e *Extractor) ExtractImageDataURL(resp *openrouter.ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoImage
	}

	// 1) images array
	msg := resp.Choices[0].Message
	if len(msg.Images) > 0 {
		if url := msg.Images[0].ImageURL.URL; url != "" {
			if candidate := classifyString(url); candidate != "" {
				return e.resolve(candidate)
			}
		}
	}

	// 2/3) content, as part list or plain string
	if candidate := findImageCandidate(resp.ContentAny(), 0); candidate != "" {
		return e.resolve(candidate)
	}

	// 4) deep scan of the entire response
	if candidate := findImageCandidate(resp.RawAny(), 0); candidate != "" {
		return e.resolve(candidate)
	}

	return "", ErrNoImage
}

func (e *Extractor) resolve(candidate string) (string, error) {
	if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") {
		if fetched := e.fetchAsDataURL(candidate); fetched != "" {
			return fetched, nil
		}
		return "", ErrNoImage
	}
	return candidate, nil
}

func (e *Extractor) fetchAsDataURL(url string) string {
	resp, err := e.httpClient.Get(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return utils.EncodeDataURL(mime, body)
}

// classifyString returns the image candidate carried by a string: a data
// URL, a remote URL, or an embedded data:image token mid-string.
func classifyString(s string) string {
	if strings.HasPrefix(s, "data:") {
		return s
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if idx := strings.Index(s, "data:image/"); idx >= 0 {
		return sliceEmbeddedToken(s, idx)
	}
	return ""
}

func sliceEmbeddedToken(s string, start int) string {
	end := len(s)
	for _, sep := range embeddedTokenDelimiters {
		if ix := strings.Index(s[start:], sep); ix != -1 && start+ix < end {
			end = start + ix
		}
	}
	return s[start:end]
}

// findImageCandidate recursively scans a decoded JSON value, first match
// wins. Explicit image_url items are checked before generic traversal.
func findImageCandidate(obj interface{}, depth int) string {
	if depth > maxScanDepth {
		return ""
	}

	switch v := obj.(type) {
	case string:
		return classifyString(v)

	case map[string]interface{}:
		if t, ok := v["type"].(string); ok && t == "image_url" {
			if inner, ok := v["image_url"].(map[string]interface{}); ok {
				if url, ok := inner["url"].(string); ok {
					if candidate := classifyString(url); candidate != "" {
						return candidate
					}
				}
			}
		}
		if url, ok := v["url"].(string); ok {
			if candidate := classifyString(url); candidate != "" {
				return candidate
			}
		}
		if nested, ok := v["image_url"].(map[string]interface{}); ok {
			if url, ok := nested["url"].(string); ok {
				if candidate := classifyString(url); candidate != "" {
					return candidate
				}
			}
		}
		for _, value := range v {
			if candidate := findImageCandidate(value, depth+1); candidate != "" {
				return candidate
			}
		}

	case []interface{}:
		for _, item := range v {
			if candidate := findImageCandidate(item, depth+1); candidate != "" {
				return candidate
			}
		}
	}

	return ""
}
