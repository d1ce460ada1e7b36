// Package api provides HTTP handlers for the TerraMind API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/himanshu-nimonkar/TerraMind/internal/orchestrator"
	"github.com/himanshu-nimonkar/TerraMind/internal/session"
)

// maxRequestBodySize caps request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the request/response API surface.
type Handler struct {
	orch  *orchestrator.Orchestrator
	store session.Store
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(orch *orchestrator.Orchestrator, store session.Store) *Handler {
	return &Handler{orch: orch, store: store}
}

// RegisterRoutes registers the API endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/analyze", h.handleAnalyze)
	r.Post("/api/reset", h.handleReset)
	r.Post("/api/voice-llm", h.handleVoiceLLM)
	r.Post("/api/voice-llm/chat/completions", h.handleVoiceLLM)
	r.Get("/health", h.handleHealth)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"sessions": "ok"}
	status := "healthy"
	if err := h.store.Ping(r.Context()); err != nil {
		services["sessions"] = "unreachable"
		status = "degraded"
	}
	JSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Services:  services,
	})
}
