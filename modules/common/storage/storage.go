package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"maestro-pipeline-server/modules/common/config"
)

type Client struct {
	httpClient *http.Client
}

// NewClient creates the storage client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// DownloadImage fetches an image from the public storage base URL.
func (c *Client) DownloadImage(filePath string) ([]byte, error) {
	cfg := config.GetConfig()

	fullURL := cfg.SupabaseStorageBaseURL + filePath
	log.Printf("📥 Downloading image from: %s", fullURL)

	resp, err := c.httpClient.Get(fullURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download image: status %d, body: %s", resp.StatusCode, string(body))
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	log.Printf("✅ Image downloaded: %d bytes", len(imageData))
	return imageData, nil
}

// UploadStill converts a generated still to WebP and uploads it under the
// job's folder in the storyboard bucket. Returns the storage path and the
// uploaded size.
func (c *Client) UploadStill(ctx context.Context, imageData []byte, jobID string, shotID int, convertToWebP func([]byte, float32) ([]byte, error)) (string, int64, error) {
	cfg := config.GetConfig()

	webpData, err := convertToWebP(imageData, 90.0)
	if err != nil {
		return "", 0, fmt.Errorf("failed to convert still to WebP: %w", err)
	}

	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	randomID := rand.Intn(999999)
	fileName := fmt.Sprintf("shot_%02d_%d_%d.webp", shotID, timestamp, randomID)
	filePath := fmt.Sprintf("storyboards/job-%s/%s", jobID, fileName)

	log.Printf("📤 Uploading WebP still to storage: %s", filePath)

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		cfg.SupabaseURL, cfg.SupabaseStorageBucket, filePath)

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(webpData))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", "image/webp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload still: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	webpSize := int64(len(webpData))
	log.Printf("✅ WebP still uploaded: %s (%d bytes)", filePath, webpSize)
	return filePath, webpSize, nil
}
