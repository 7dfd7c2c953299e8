package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "macrolink/internal/errors"
)

// ChartHandler serves Plotly figures for datasets.
type ChartHandler struct {
	service      ChartService
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewChartHandler creates the chart handler.
func NewChartHandler(service ChartService, logger *slog.Logger, errorHandler *apperrors.Handler) *ChartHandler {
	return &ChartHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "chart")),
		errorHandler: errorHandler,
	}
}

// Routes returns the chart routes.
func (h *ChartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{statsDataID}", h.Figure)
	return r
}

// Figure handles GET /api/chart/{statsDataID}.
func (h *ChartHandler) Figure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "statsDataID")
	if id == "" {
		h.errorHandler.HandleError(w, r,
			apperrors.NewValidationError("statsDataID", "dataset identifier is required"))
		return
	}

	fig, err := h.service.Figure(r.Context(), id,
		r.URL.Query().Get("cat"), r.URL.Query().Get("area"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, fig)
}
