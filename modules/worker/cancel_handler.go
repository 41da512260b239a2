package worker

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/database"
	"maestro-pipeline-server/modules/common/model"
	redisClient "maestro-pipeline-server/modules/common/redis"
)

// CancelHandler raises the Redis cancellation flag for a running job. The
// worker polls the flag between shots and stops after the current one.
type CancelHandler struct {
	rdb *redis.Client
	db  *database.Client
}

func NewCancelHandler() *CancelHandler {
	cfg := config.GetConfig()
	if cfg == nil {
		log.Println("❌ [CancelHandler] Failed to get config")
		return nil
	}

	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Println("❌ [CancelHandler] Failed to connect to Redis")
		return nil
	}

	db := database.NewClient()
	if db == nil {
		log.Println("❌ [CancelHandler] Failed to initialize Database client")
		return nil
	}

	return &CancelHandler{rdb: rdb, db: db}
}

// RegisterRoutes wires the cancel endpoint.
func (h *CancelHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/jobs/{jobId}/cancel", h.CancelJob).Methods("POST", "OPTIONS")
	log.Println("✅ [CancelHandler] Routes registered: POST /api/jobs/{jobId}/cancel")
}

// CancelJob - POST /api/jobs/{jobId}/cancel
func (h *CancelHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	jobID := vars["jobId"]

	if jobID == "" {
		http.Error(w, `{"error": "jobId is required"}`, http.StatusBadRequest)
		return
	}

	log.Printf("🛑 [CancelHandler] Cancel requested for job: %s", jobID)

	if err := redisClient.SetJobCancelled(h.rdb, jobID); err != nil {
		log.Printf("❌ [CancelHandler] Failed to set cancel flag: %v", err)
		http.Error(w, `{"error": "Failed to set cancel flag"}`, http.StatusInternalServerError)
		return
	}

	job, err := h.db.FetchJob(jobID)
	if err != nil {
		log.Printf("❌ [CancelHandler] Job not found: %s", jobID)
		http.Error(w, `{"error": "Job not found"}`, http.StatusNotFound)
		return
	}

	// Completed or already-cancelled jobs cannot be cancelled again.
	if job.JobStatus == model.StatusCompleted || job.JobStatus == model.StatusUserCancelled {
		log.Printf("⚠️ [CancelHandler] Job already %s: %s", job.JobStatus, jobID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":         false,
			"message":         "Job already " + job.JobStatus,
			"job_id":          jobID,
			"job_status":      job.JobStatus,
			"completed_shots": job.CompletedShots,
		})
		return
	}

	log.Printf("✅ [CancelHandler] Cancel flag set for job: %s (current status: %s, completed: %d)",
		jobID, job.JobStatus, job.CompletedShots)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"message":         "Cancel request sent. Job will stop after current shot.",
		"job_id":          jobID,
		"current_status":  job.JobStatus,
		"completed_shots": job.CompletedShots,
		"total_shots":     job.TotalShots,
	})
}
