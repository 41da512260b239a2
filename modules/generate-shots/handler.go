package generateshots

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"maestro-pipeline-server/modules/common/model"
)

// ShotGenerator runs the director stage. Implemented by the pipeline
// orchestrator.
type ShotGenerator interface {
	GenerateShots(ctx context.Context, middleFrameDataURL, contextText string, shotCount int) ([]model.Shot, error)
}

type GenerateShotsHandler struct {
	generator ShotGenerator
}

func NewGenerateShotsHandler(generator ShotGenerator) *GenerateShotsHandler {
	return &GenerateShotsHandler{generator: generator}
}

// RegisterRoutes wires the shot-listing endpoint.
func (h *GenerateShotsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generate-shots", h.GenerateShots).Methods("POST", "OPTIONS")
	log.Println("✅ Generate-shots routes registered: /api/generate-shots")
}

type shotsRequest struct {
	MiddleFrame string `json:"middleFrame"`
	ContextText string `json:"contextText"`
	ShotCount   int    `json:"shotCount"`
}

type shotsResponse struct {
	Success bool         `json:"success"`
	Shots   []model.Shot `json:"shots,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (h *GenerateShotsHandler) GenerateShots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req shotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(shotsResponse{Error: "Invalid request format"})
		return
	}

	if req.MiddleFrame == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(shotsResponse{Error: "Missing required field: middleFrame"})
		return
	}

	shots, err := h.generator.GenerateShots(r.Context(), req.MiddleFrame, req.ContextText, req.ShotCount)
	if err != nil {
		log.Printf("❌ Shot generation failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(shotsResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(shotsResponse{Success: true, Shots: shots})
}
