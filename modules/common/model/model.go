package model

import "time"

// Shot is one storyboard entry produced by the director stage.
type Shot struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// StoryboardJob mirrors the maestro_storyboard_jobs table.
type StoryboardJob struct {
	JobID          string        `json:"job_id"`
	JobStatus      string        `json:"job_status"`
	TotalShots     int           `json:"total_shots"`
	CompletedShots int           `json:"completed_shots"`
	FailedShots    int           `json:"failed_shots"`
	JobInputData   JobInputData  `json:"job_input_data"`
	ErrorMessage   *string       `json:"error_message"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// JobInputData - job_input_data JSONB structure.
type JobInputData struct {
	StyleImage  string `json:"styleImage"`  // data URL or bare base64
	ContextText string `json:"contextText"` // optional, skips the analyze stage when present
	ShotCount   int    `json:"shotCount"`
	Shots       []Shot `json:"shots"` // optional, skips the director stage when present
	UserID      string `json:"userId"`
}

// ShotResult mirrors the maestro_shot_results table.
type ShotResult struct {
	JobID       string  `json:"job_id"`
	ShotID      int     `json:"shot_id"`
	ShotText    string  `json:"shot_text"`
	StoragePath *string `json:"storage_path"`
	FileSize    *int64  `json:"file_size"`
	ErrorText   *string `json:"error_text"`
}

const (
	StatusPending       = "pending"
	StatusProcessing    = "processing"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusUserCancelled = "user_cancelled"
)
