package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"log"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP decoder registration
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// JPEGQuality is used for every JPEG re-encode in the pipeline.
const JPEGQuality = 85

// EncodeDataURL wraps raw image bytes in a data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL splits a data URL into its MIME type and raw bytes.
// Bare base64 without the data: prefix is accepted and assumed PNG.
func DecodeDataURL(dataURL string) (string, []byte, error) {
	s := strings.TrimSpace(dataURL)
	if !strings.HasPrefix(s, "data:") {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", nil, fmt.Errorf("failed to decode base64 payload: %w", err)
		}
		return "image/png", raw, nil
	}

	rest := strings.TrimPrefix(s, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URL: no comma separator")
	}

	meta := rest[:comma]
	payload := rest[comma+1:]
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "image/png"
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return mimeType, raw, nil
}

// DownscaleToLongestEdge shrinks an image so its longest edge is at most
// maxEdge pixels. Images already within the cap are returned untouched.
// Nearest neighbor sampling; fidelity is not the point for model inputs.
func DownscaleToLongestEdge(src image.Image, maxEdge int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	longest := w
	if h > longest {
		longest = h
	}
	if maxEdge <= 0 || longest <= maxEdge {
		return src
	}

	scale := float64(maxEdge) / float64(longest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + int(float64(x)/scale)
			srcY := bounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}

// EncodeJPEGDataURL encodes an image as a JPEG data URL at pipeline quality.
func EncodeJPEGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return EncodeDataURL("image/jpeg", buf.Bytes()), nil
}

// CompressToJPEGDataURL decodes arbitrary image bytes, downscales to the
// longest-edge cap, and returns a JPEG data URL. Used for style previews
// and frame payloads sent to vision models.
func CompressToJPEGDataURL(raw []byte, maxEdge int) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	log.Printf("🔍 Decoded %s image %dx%d for compression", format, img.Bounds().Dx(), img.Bounds().Dy())
	return EncodeJPEGDataURL(DownscaleToLongestEdge(img, maxEdge))
}

// ConvertToWebP re-encodes PNG/JPEG/WebP bytes as lossy WebP for storage.
func ConvertToWebP(raw []byte, quality float32) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for WebP conversion: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := buf.Bytes()
	log.Printf("✅ %s converted to WebP: %d bytes → %d bytes (%.1f%% reduction)",
		format, len(raw), len(webpData),
		float64(len(raw)-len(webpData))/float64(max(len(raw), 1))*100)
	return webpData, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
