package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// HealthHandler serves liveness and version endpoints.
type HealthHandler struct {
	service HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(service HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/healthz.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Check(r.Context()))
}

// Version handles GET /api/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version(r.Context()))
}
