package generateimage

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// ImageGenerator runs the image stage for one shot. Implemented by the
// pipeline orchestrator.
type ImageGenerator interface {
	GenerateOne(ctx context.Context, styleDataURL, shotText string) (string, error)
}

type GenerateImageHandler struct {
	generator ImageGenerator
}

func NewGenerateImageHandler(generator ImageGenerator) *GenerateImageHandler {
	return &GenerateImageHandler{generator: generator}
}

// RegisterRoutes wires the single-shot image endpoint.
func (h *GenerateImageHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generate-image", h.GenerateImage).Methods("POST", "OPTIONS")
	log.Println("✅ Generate-image routes registered: /api/generate-image")
}

type imageRequest struct {
	StyleImage string `json:"styleImage"` // data URL or bare base64
	ShotText   string `json:"shotText"`
}

type imageResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image,omitempty"` // data URL
	Error   string `json:"error,omitempty"`
}

func (h *GenerateImageHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(imageResponse{Error: "Invalid request format"})
		return
	}

	if req.StyleImage == "" || req.ShotText == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(imageResponse{Error: "Missing required fields: styleImage, shotText"})
		return
	}

	image, err := h.generator.GenerateOne(r.Context(), req.StyleImage, req.ShotText)
	if err != nil {
		log.Printf("❌ Image generation failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(imageResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(imageResponse{Success: true, Image: image})
}
