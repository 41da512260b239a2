package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // frame decoder registration
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"maestro-pipeline-server/modules/common/utils"
)

// ErrNoFrames means the stream opened but zero frames were decodable.
var ErrNoFrames = errors.New("no frames extracted")

// FrameMaxEdge caps the longest edge of sampled frames to bound request
// payload size.
const FrameMaxEdge = 768

const assumedFPS = 30.0

type probeResult struct {
	TotalFrames int
	FPS         float64
	DurationSec float64
}

// frameIndices computes n evenly spaced frame indices,
// index(i) = round((i/(n+1)) * totalFrames) for i = 1..n, clamped to
// [0, totalFrames-1]. Avoids the first/last-frame bias of equal division.
func frameIndices(totalFrames, n int) []int {
	if n < 1 {
		n = 1
	}
	indices := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		idx := int(math.Round(float64(i) / float64(n+1) * float64(totalFrames)))
		if idx < 0 {
			idx = 0
		}
		if idx > totalFrames-1 {
			idx = totalFrames - 1
		}
		indices = append(indices, idx)
	}
	return indices
}

// estimateFromProbe is the pure part of EstimateFrameCount: one frame per
// secondsPerFrame of duration, clamped to [minFrames, maxFrames], never
// below 1. maxFrames <= 0 means no upper bound.
func estimateFromProbe(p probeResult, secondsPerFrame float64, minFrames, maxFrames int) int {
	if minFrames < 1 {
		minFrames = 1
	}

	durationSec := p.DurationSec
	if durationSec <= 0 {
		if p.FPS > 0 && p.TotalFrames > 0 {
			durationSec = float64(p.TotalFrames) / p.FPS
		} else if p.TotalFrames > 0 {
			durationSec = float64(p.TotalFrames) / assumedFPS
		}
	}
	if durationSec <= 0 {
		return minFrames
	}

	if secondsPerFrame < 0.001 {
		secondsPerFrame = 0.001
	}
	n := int(math.Ceil(durationSec / secondsPerFrame))
	if maxFrames > 0 && n > maxFrames {
		n = maxFrames
	}
	if n < minFrames {
		n = minFrames
	}
	return n
}

// EstimateFrameCount estimates how many context frames to sample from a
// video. Fails closed to minFrames when the video cannot be probed.
func EstimateFrameCount(ctx context.Context, videoBytes []byte, secondsPerFrame float64, minFrames, maxFrames int) int {
	if minFrames < 1 {
		minFrames = 1
	}

	tmpPath, cleanup, err := writeTempVideo(videoBytes)
	if err != nil {
		return minFrames
	}
	defer cleanup()

	probe, err := probeVideo(ctx, tmpPath)
	if err != nil {
		log.Printf("⚠️ ffprobe failed, falling back to %d frames: %v", minFrames, err)
		return minFrames
	}

	return estimateFromProbe(probe, secondsPerFrame, minFrames, maxFrames)
}

// SampleFrames extracts n evenly spaced frames as JPEG data URLs, each
// downscaled to the longest-edge cap, in ascending frame order.
func SampleFrames(ctx context.Context, videoBytes []byte, n int) ([]string, error) {
	images, err := sampleImages(ctx, videoBytes, n)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		url, err := utils.EncodeJPEGDataURL(utils.DownscaleToLongestEdge(img, FrameMaxEdge))
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// SampleMiddleFrame samples 5 frames and returns the middle one. Reuses the
// general sampler rather than seeking to the temporal midpoint.
func SampleMiddleFrame(ctx context.Context, videoBytes []byte) (string, error) {
	frames, err := SampleFrames(ctx, videoBytes, 5)
	if err != nil {
		return "", err
	}
	return frames[len(frames)/2], nil
}

func sampleImages(ctx context.Context, videoBytes []byte, n int) ([]image.Image, error) {
	tmpPath, cleanup, err := writeTempVideo(videoBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to stage video: %w", err)
	}
	defer cleanup()

	probe, err := probeVideo(ctx, tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	if probe.TotalFrames < 1 {
		return nil, ErrNoFrames
	}

	indices := frameIndices(probe.TotalFrames, n)

	// ffmpeg decodes each distinct index once; duplicates (short videos)
	// reuse the decoded frame.
	unique := uniqueSorted(indices)

	frameDir, err := os.MkdirTemp("", "maestro-frames-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	defer os.RemoveAll(frameDir)

	selectExprs := make([]string, 0, len(unique))
	for _, idx := range unique {
		selectExprs = append(selectExprs, fmt.Sprintf("eq(n\\,%d)", idx))
	}

	framePattern := filepath.Join(frameDir, "frame_%03d.png")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", tmpPath,
		"-vf", "select='"+strings.Join(selectExprs, "+")+"'",
		"-vsync", "0",
		"-y",
		framePattern,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w, output: %s", err, string(output))
	}

	decodedByIndex := make(map[int]image.Image, len(unique))
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "frame_") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for i, name := range names {
		if i >= len(unique) {
			break
		}
		raw, err := os.ReadFile(filepath.Join(frameDir, name))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			log.Printf("⚠️ Failed to decode frame %s: %v", name, err)
			continue
		}
		decodedByIndex[unique[i]] = img
	}

	if len(decodedByIndex) == 0 {
		return nil, ErrNoFrames
	}

	images := make([]image.Image, 0, len(indices))
	for _, idx := range indices {
		if img, ok := decodedByIndex[idx]; ok {
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoFrames
	}
	return images, nil
}

// probeVideo reads frame count, frame rate, and duration via ffprobe.
func probeVideo(ctx context.Context, videoPath string) (probeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets,r_frame_rate:format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return probeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	var result probeResult
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "nb_read_packets":
			if v, err := strconv.Atoi(value); err == nil {
				result.TotalFrames = v
			}
		case "r_frame_rate":
			result.FPS = parseFrameRate(value)
		case "duration":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				result.DurationSec = v
			}
		}
	}

	if result.TotalFrames == 0 && result.DurationSec == 0 {
		return probeResult{}, fmt.Errorf("ffprobe returned no usable stream metadata")
	}
	return result, nil
}

// parseFrameRate handles ffprobe's rational rate format ("30000/1001").
func parseFrameRate(value string) float64 {
	num, den, found := strings.Cut(value, "/")
	if !found {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func writeTempVideo(videoBytes []byte) (string, func(), error) {
	tmp, err := os.CreateTemp("", "maestro-video-*.mp4")
	if err != nil {
		return "", nil, err
	}
	if _, err := tmp.Write(videoBytes); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func uniqueSorted(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
