package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	analyzecontext "maestro-pipeline-server/modules/analyze-context"
	"maestro-pipeline-server/modules/common/config"
	"maestro-pipeline-server/modules/common/progress"
	generateimage "maestro-pipeline-server/modules/generate-image"
	generateshots "maestro-pipeline-server/modules/generate-shots"
	"maestro-pipeline-server/modules/pipeline"
	"maestro-pipeline-server/modules/worker"
)

// enableCORS - permissive CORS for the storyboard UI
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "maestro-pipeline-server",
	})
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Progress hub streams pipeline log lines and job events to UI clients.
	hub := progress.NewHub()

	pipe := pipeline.New(cfg)
	pipe.SetLogger(func(line string) {
		log.Printf("%s", line)
		hub.Log(line)
	})

	// Batch jobs run through the Redis queue in the background.
	go worker.StartWorker(pipe, hub)

	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", hub.HandleWS)

	analyzecontext.NewAnalyzeContextHandler(pipe).RegisterRoutes(r)
	generateshots.NewGenerateShotsHandler(pipe).RegisterRoutes(r)
	generateimage.NewGenerateImageHandler(pipe).RegisterRoutes(r)

	if enqueueHandler := worker.NewEnqueueHandler(); enqueueHandler != nil {
		enqueueHandler.RegisterRoutes(r)
	}
	if cancelHandler := worker.NewCancelHandler(); cancelHandler != nil {
		cancelHandler.RegisterRoutes(r)
	}

	port := cfg.Port

	log.Printf("🚀 Maestro Pipeline Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
