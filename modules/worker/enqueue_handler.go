package worker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/database"
	"maestro-pipeline-server/modules/common/fallback"
	"maestro-pipeline-server/modules/common/model"
	redisClient "maestro-pipeline-server/modules/common/redis"
)

// EnqueueHandler creates a storyboard batch job and pushes it onto the
// Redis queue.
type EnqueueHandler struct {
	rdb *redis.Client
	db  *database.Client
}

type EnqueueRequest struct {
	StyleImage  string       `json:"styleImage"` // data URL or bare base64
	Shots       []model.Shot `json:"shots"`
	ContextText string       `json:"contextText,omitempty"`
	ShotCount   int          `json:"shotCount,omitempty"`
	UserID      string       `json:"userId,omitempty"`
}

type EnqueueResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	Queue         string `json:"queue,omitempty"`
	QueuePosition int64  `json:"queuePosition,omitempty"`
}

func NewEnqueueHandler() *EnqueueHandler {
	cfg := config.GetConfig()

	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Println("⚠️ [Enqueue] Failed to connect to Redis")
		return nil
	}

	db := database.NewClient()
	if db == nil {
		log.Println("⚠️ [Enqueue] Failed to initialize Database client")
		return nil
	}

	log.Println("✅ [Enqueue] Handler initialized with Redis connection")
	return &EnqueueHandler{rdb: rdb, db: db}
}

// RegisterRoutes wires the enqueue and job-status endpoints.
func (h *EnqueueHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/enqueue", h.HandleEnqueue).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/jobs/{jobId}", h.GetJobStatus).Methods("GET", "OPTIONS")
	log.Println("✅ Enqueue routes registered: /api/enqueue, /api/jobs/{jobId}")
}

// GetJobStatus - GET /api/jobs/{jobId}
func (h *EnqueueHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	jobID := vars["jobId"]
	if jobID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "jobId is required"})
		return
	}

	job, err := h.db.FetchJob(jobID)
	if err != nil {
		log.Printf("❌ [Enqueue] Failed to fetch job: %v", err)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Job not found"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(job)
}

// HandleEnqueue - POST /api/enqueue
func (h *EnqueueHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Enqueue] Invalid request: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if req.StyleImage == "" {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "styleImage is required"})
		return
	}
	if len(req.Shots) == 0 {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "shots is required"})
		return
	}

	jobID := uuid.New().String()
	input := model.JobInputData{
		StyleImage:  req.StyleImage,
		ContextText: req.ContextText,
		ShotCount:   fallback.DefaultShotCount(req.ShotCount),
		Shots:       req.Shots,
		UserID:      req.UserID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.db.CreateJob(ctx, jobID, input); err != nil {
		log.Printf("❌ [Enqueue] Failed to create job row: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "Failed to create job"})
		return
	}

	if _, err := h.rdb.LPush(ctx, redisClient.QueueKey, jobID).Result(); err != nil {
		log.Printf("❌ [Enqueue] Redis LPUSH failed: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	queueLen, _ := h.rdb.LLen(ctx, redisClient.QueueKey).Result()

	log.Printf("✅ [Enqueue] Job %s enqueued (%d shots, position: %d)", jobID, len(req.Shots), queueLen)

	json.NewEncoder(w).Encode(EnqueueResponse{
		Success:       true,
		Message:       "Job enqueued successfully",
		JobID:         jobID,
		Queue:         redisClient.QueueKey,
		QueuePosition: queueLen,
	})
}
