package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"

	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/model"
)

const (
	jobsTable    = "maestro_storyboard_jobs"
	resultsTable = "maestro_shot_results"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient creates the database client against Supabase.
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// CreateJob inserts a new storyboard job row in pending state.
func (c *Client) CreateJob(ctx context.Context, jobID string, input model.JobInputData) error {
	log.Printf("💾 Creating storyboard job: %s", jobID)

	insertData := map[string]interface{}{
		"job_id":          jobID,
		"job_status":      model.StatusPending,
		"total_shots":     input.ShotCount,
		"completed_shots": 0,
		"failed_shots":    0,
		"job_input_data":  input,
	}

	_, _, err := c.supabase.From(jobsTable).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	log.Printf("✅ Job created: %s", jobID)
	return nil
}

// FetchJob loads a storyboard job row by id.
func (c *Client) FetchJob(jobID string) (*model.StoryboardJob, error) {
	log.Printf("🔍 Fetching job from Supabase: %s", jobID)

	var jobs []model.StoryboardJob

	data, _, err := c.supabase.From(jobsTable).
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	job := &jobs[0]
	log.Printf("✅ Job fetched: %s (status: %s, total_shots: %d)",
		job.JobID, job.JobStatus, job.TotalShots)

	return job, nil
}

// UpdateJobStatus moves a job through its lifecycle, stamping
// started_at/completed_at at the transitions.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status string) error {
	log.Printf("📝 Updating job %s status to: %s", jobID, status)

	updateData := map[string]interface{}{
		"job_status": status,
		"updated_at": "now()",
	}

	if status == model.StatusProcessing {
		updateData["started_at"] = "now()"
	} else if status == model.StatusCompleted || status == model.StatusFailed || status == model.StatusUserCancelled {
		updateData["completed_at"] = "now()"
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	log.Printf("✅ Job %s status updated to: %s", jobID, status)
	return nil
}

// SetJobError records a terminal error message on the job row.
func (c *Client) SetJobError(ctx context.Context, jobID string, message string) error {
	updateData := map[string]interface{}{
		"error_message": message,
		"updated_at":    "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to record job error: %w", err)
	}
	return nil
}

// UpdateJobProgress records how many shots have finished so far.
func (c *Client) UpdateJobProgress(ctx context.Context, jobID string, completed, failed int) error {
	log.Printf("📊 Updating job progress: %d completed, %d failed", completed, failed)

	updateData := map[string]interface{}{
		"completed_shots": completed,
		"failed_shots":    failed,
		"updated_at":      "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// SaveShotResult inserts one per-shot result row. Either storage path or
// error text is set, never both.
func (c *Client) SaveShotResult(ctx context.Context, result model.ShotResult) error {
	insertData := map[string]interface{}{
		"job_id":    result.JobID,
		"shot_id":   result.ShotID,
		"shot_text": result.ShotText,
	}
	if result.StoragePath != nil {
		insertData["storage_path"] = *result.StoragePath
		if result.FileSize != nil {
			insertData["file_size"] = *result.FileSize
		}
	}
	if result.ErrorText != nil {
		insertData["error_text"] = *result.ErrorText
	}

	_, _, err := c.supabase.From(resultsTable).
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert shot result: %w", err)
	}

	log.Printf("✅ Shot result saved: job=%s shot=%d", result.JobID, result.ShotID)
	return nil
}
