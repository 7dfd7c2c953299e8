package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "macrolink/internal/errors"
	"macrolink/internal/services"
)

// analysisQuery carries the validated query parameters of a forecast
// request.
type analysisQuery struct {
	CategoryCode string `validate:"omitempty,alphanum,max=20"`
	AreaCode     string `validate:"omitempty,alphanum,max=20"`
	NPeriods     int    `validate:"omitempty,min=1"`
}

// AnalysisHandler serves the forecast, wide-format and export routes.
type AnalysisHandler struct {
	analysis     AnalysisService
	workbook     WorkbookService
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.Handler
}

// NewAnalysisHandler creates the analysis handler.
func NewAnalysisHandler(analysis AnalysisService, workbook WorkbookService, logger *slog.Logger, errorHandler *apperrors.Handler) *AnalysisHandler {
	return &AnalysisHandler{
		analysis:     analysis,
		workbook:     workbook,
		validator:    validator.New(),
		logger:       logger.With(slog.String("handler", "analysis")),
		errorHandler: errorHandler,
	}
}

// Routes returns the analysis routes.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{statsDataID}", func(r chi.Router) {
		r.Use(h.StatsDataIDCtx)
		r.Get("/", h.WideFormat)
		r.Get("/export", h.Export)
	})
	r.Route("/predict/{statsDataID}", func(r chi.Router) {
		r.Use(h.StatsDataIDCtx)
		r.Get("/", h.Predict)
	})

	return r
}

// StatsDataIDCtx validates the dataset identifier path parameter.
func (h *AnalysisHandler) StatsDataIDCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "statsDataID")
		if err := h.validator.Var(id, "required,alphanum,min=4,max=20"); err != nil {
			h.errorHandler.HandleError(w, r,
				apperrors.NewValidationError("statsDataID", "must be a 4-20 character dataset identifier"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Predict handles GET /api/analysis/predict/{statsDataID}.
func (h *AnalysisHandler) Predict(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.analysis.Predict(r.Context(), services.PredictRequest{
		StatsDataID:  chi.URLParam(r, "statsDataID"),
		CategoryCode: query.CategoryCode,
		AreaCode:     query.AreaCode,
		NPeriods:     query.NPeriods,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, resp)
}

// WideFormat handles GET /api/analysis/{statsDataID}.
func (h *AnalysisHandler) WideFormat(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.analysis.WideFormat(r.Context(), chi.URLParam(r, "statsDataID"), query.AreaCode)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, resp)
}

// Export handles GET /api/analysis/{statsDataID}/export.
func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	id := chi.URLParam(r, "statsDataID")
	buf, err := h.workbook.Workbook(r.Context(), id, query.AreaCode)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s.xlsx"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)

	if _, err := buf.WriteTo(w); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to stream workbook",
			slog.String("error", err.Error()),
			slog.String("stats_id", id),
		)
	}
}

// parseQuery extracts and validates the shared query parameters.
func (h *AnalysisHandler) parseQuery(r *http.Request) (*analysisQuery, error) {
	q := &analysisQuery{
		CategoryCode: r.URL.Query().Get("cat"),
		AreaCode:     r.URL.Query().Get("area"),
	}

	if raw := r.URL.Query().Get("n_periods"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apperrors.NewValidationError("n_periods", "must be an integer")
		}
		q.NPeriods = n
	}

	if err := h.validator.Struct(q); err != nil {
		return nil, apperrors.NewValidationError("query", err.Error())
	}
	return q, nil
}
