package analyzecontext

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"maestro-pipeline-server/modules/common/utils"
)

// ContextAnalyzer runs the sampling + context stage. Implemented by the
// pipeline orchestrator.
type ContextAnalyzer interface {
	AnalyzeContext(ctx context.Context, videoBytes []byte) (contextText string, middleFrame string, err error)
}

type AnalyzeContextHandler struct {
	analyzer ContextAnalyzer
}

func NewAnalyzeContextHandler(analyzer ContextAnalyzer) *AnalyzeContextHandler {
	return &AnalyzeContextHandler{analyzer: analyzer}
}

// RegisterRoutes wires the context-analysis endpoint.
func (h *AnalyzeContextHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/analyze-context", h.AnalyzeContext).Methods("POST", "OPTIONS")
	log.Println("✅ Analyze-context routes registered: /api/analyze-context")
}

type analyzeRequest struct {
	Video string `json:"video"` // base64 or data URL
}

type analyzeResponse struct {
	Success     bool   `json:"success"`
	ContextText string `json:"contextText,omitempty"`
	MiddleFrame string `json:"middleFrame,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (h *AnalyzeContextHandler) AnalyzeContext(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(analyzeResponse{Error: "Invalid request format"})
		return
	}

	if req.Video == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(analyzeResponse{Error: "Missing required field: video"})
		return
	}

	_, videoBytes, err := utils.DecodeDataURL(req.Video)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(analyzeResponse{Error: "video must be base64 or a data URL"})
		return
	}

	contextText, middleFrame, err := h.analyzer.AnalyzeContext(r.Context(), videoBytes)
	if err != nil {
		log.Printf("❌ Context analysis failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(analyzeResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(analyzeResponse{
		Success:     true,
		ContextText: contextText,
		MiddleFrame: middleFrame,
	})
}
