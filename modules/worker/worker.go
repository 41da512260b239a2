package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/database"
	"maestro-pipeline-server/modules/common/fallback"
	"maestro-pipeline-server/modules/common/model"
	"maestro-pipeline-server/modules/common/progress"
	redisClient "maestro-pipeline-server/modules/common/redis"
	"maestro-pipeline-server/modules/common/storage"
	"maestro-pipeline-server/modules/common/utils"
	"maestro-pipeline-server/modules/pipeline"
)

// StartWorker watches the Redis queue and processes storyboard batch jobs.
// Blocks forever; run in a goroutine.
func StartWorker(pipe *pipeline.Pipeline, hub *progress.Hub) {
	log.Println("🔄 Redis Queue Worker starting...")

	cfg := config.GetConfig()

	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
		return
	}
	log.Println("✅ Redis connected successfully")

	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
		return
	}

	storageClient := storage.NewClient()

	log.Printf("👀 Watching queue: %s", redisClient.QueueKey)

	ctx := context.Background()

	for {
		result, err := rdb.BRPop(ctx, 0, redisClient.QueueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0] is the queue key, result[1] the job id
		jobID := result[1]
		log.Printf("🎯 Received new job: %s", jobID)

		go func(jobID string) {
			w := &jobRunner{
				pipe:    pipe,
				hub:     hub,
				rdb:     rdb,
				db:      dbClient,
				storage: storageClient,
			}
			w.processJob(ctx, jobID)
		}(jobID)
	}
}

type jobRunner struct {
	pipe    *pipeline.Pipeline
	hub     *progress.Hub
	rdb     *redis.Client
	db      *database.Client
	storage *storage.Client
}

func (w *jobRunner) processJob(ctx context.Context, jobID string) {
	log.Printf("🚀 Processing job: %s", jobID)
	w.broadcastJob(jobID, model.StatusProcessing, "Job started")

	job, err := w.db.FetchJob(jobID)
	if err != nil {
		log.Printf("❌ Failed to fetch job %s: %v", jobID, err)
		return
	}

	if redisClient.IsJobCancelled(w.rdb, jobID) {
		log.Printf("🛑 Job %s cancelled before start", jobID)
		w.finishJob(ctx, jobID, model.StatusUserCancelled, "cancelled before start")
		return
	}

	if err := w.db.UpdateJobStatus(ctx, jobID, model.StatusProcessing); err != nil {
		log.Printf("⚠️ Failed to mark job processing: %v", err)
	}

	input := job.JobInputData

	shots := input.Shots
	if len(shots) == 0 {
		w.failJob(ctx, jobID, "no shots provided in job input")
		return
	}

	styleDataURL, err := normalizeStyleImage(input.StyleImage)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("invalid style image: %v", err))
		return
	}

	cancelled := func() bool {
		return redisClient.IsJobCancelled(w.rdb, jobID)
	}

	completed := 0
	failed := 0

	onProgress := func(shotID int, dataURL string, genErr error) {
		if genErr != nil {
			failed++
			w.hub.Broadcast(progress.Event{Type: "shot", JobID: jobID, ShotID: shotID, Status: "failed", Message: genErr.Error()})
			w.recordFailedShot(ctx, jobID, shots, shotID, genErr)
		} else {
			completed++
			w.hub.Broadcast(progress.Event{Type: "shot", JobID: jobID, ShotID: shotID, Status: "completed"})
			w.recordCompletedShot(ctx, jobID, shots, shotID, dataURL)
		}
		if err := w.db.UpdateJobProgress(ctx, jobID, completed, failed); err != nil {
			log.Printf("⚠️ Failed to update progress for job %s: %v", jobID, err)
		}
	}

	w.pipe.GenerateAll(ctx, styleDataURL, shots, cancelled, onProgress)

	switch {
	case cancelled():
		w.finishJob(ctx, jobID, model.StatusUserCancelled, fmt.Sprintf("cancelled after %d shots", completed))
	case completed == 0:
		w.failJob(ctx, jobID, "all shots failed")
	default:
		w.finishJob(ctx, jobID, model.StatusCompleted, fmt.Sprintf("%d completed, %d failed", completed, failed))
	}
}

func (w *jobRunner) recordCompletedShot(ctx context.Context, jobID string, shots []model.Shot, shotID int, dataURL string) {
	_, raw, err := utils.DecodeDataURL(dataURL)
	if err != nil {
		log.Printf("⚠️ Failed to decode generated still for shot %d: %v", shotID, err)
		return
	}

	path, size, err := w.storage.UploadStill(ctx, raw, jobID, shotID, utils.ConvertToWebP)
	if err != nil {
		log.Printf("⚠️ Failed to upload still for shot %d: %v", shotID, err)
		return
	}

	result := model.ShotResult{
		JobID:       jobID,
		ShotID:      shotID,
		ShotText:    shotTextByID(shots, shotID),
		StoragePath: &path,
		FileSize:    &size,
	}
	if err := w.db.SaveShotResult(ctx, result); err != nil {
		log.Printf("⚠️ Failed to save shot result: %v", err)
	}
}

// recordFailedShot uploads the transparent placeholder so the storyboard
// grid keeps a full set of slots, and stores the error alongside it.
func (w *jobRunner) recordFailedShot(ctx context.Context, jobID string, shots []model.Shot, shotID int, genErr error) {
	errText := genErr.Error()
	result := model.ShotResult{
		JobID:     jobID,
		ShotID:    shotID,
		ShotText:  shotTextByID(shots, shotID),
		ErrorText: &errText,
	}

	if path, size, err := w.storage.UploadStill(ctx, fallback.PlaceholderBytes(), jobID, shotID, utils.ConvertToWebP); err == nil {
		result.StoragePath = &path
		result.FileSize = &size
	}

	if err := w.db.SaveShotResult(ctx, result); err != nil {
		log.Printf("⚠️ Failed to save shot error: %v", err)
	}
}

func (w *jobRunner) failJob(ctx context.Context, jobID, message string) {
	log.Printf("❌ Job %s failed: %s", jobID, message)
	if err := w.db.SetJobError(ctx, jobID, message); err != nil {
		log.Printf("⚠️ Failed to record job error: %v", err)
	}
	w.finishJob(ctx, jobID, model.StatusFailed, message)
}

func (w *jobRunner) finishJob(ctx context.Context, jobID, status, message string) {
	if err := w.db.UpdateJobStatus(ctx, jobID, status); err != nil {
		log.Printf("⚠️ Failed to set final status for job %s: %v", jobID, err)
	}
	redisClient.ClearJobCancelled(w.rdb, jobID)
	w.broadcastJob(jobID, status, message)
	log.Printf("✅ Job %s finished: %s (%s)", jobID, status, message)
}

func (w *jobRunner) broadcastJob(jobID, status, message string) {
	w.hub.Broadcast(progress.Event{Type: "job", JobID: jobID, Status: status, Message: message})
}

// normalizeStyleImage accepts a data URL or bare base64 and returns a data
// URL suitable for an image_url content part.
func normalizeStyleImage(styleImage string) (string, error) {
	if strings.TrimSpace(styleImage) == "" {
		return "", fmt.Errorf("missing style image")
	}
	if strings.HasPrefix(styleImage, "data:") {
		return styleImage, nil
	}
	mime, raw, err := utils.DecodeDataURL(styleImage)
	if err != nil {
		return "", err
	}
	return utils.EncodeDataURL(mime, raw), nil
}

func shotTextByID(shots []model.Shot, shotID int) string {
	for _, s := range shots {
		if s.ID == shotID {
			return s.Text
		}
	}
	return ""
}
