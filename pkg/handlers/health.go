package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-answer/pkg/config"
	"github.com/ekaya-inc/ekaya-answer/pkg/generation"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Model       string `json:"model,omitempty"`
}

// HealthResponse reports liveness and generation activity.
type HealthResponse struct {
	Status            string `json:"status"`
	GenerationState   string `json:"generation_state,omitempty"`
	ActiveGenerations int    `json:"active_generations"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg     *config.Config
	service *generation.Service
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. service may be nil, in which
// case /health reports liveness only.
func NewHealthHandler(cfg *config.Config, service *generation.Service, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, service: service, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	if h.service != nil {
		response.GenerationState = string(h.service.Store().State())
		response.ActiveGenerations = h.service.Registry().Active()
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-answer",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Model:       h.cfg.OpenAI.Model,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
