package errors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"macrolink/internal/infrastructure"
)

// Handler provides centralized error handling for the HTTP layer. It maps
// the closed kind enumeration to HTTP statuses; no message-text matching.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates an error handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger.With(slog.String("component", "error_handler")),
	}
}

// statusForKind is the single place where error kinds become HTTP statuses.
func statusForKind(kind Kind) (status int, problemType, title string) {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest, TypeValidation, "Validation Failed"
	case KindEmptyResult:
		return http.StatusNotFound, TypeNotFound, "No Data"
	case KindInsufficientData:
		return http.StatusUnprocessableEntity, TypeInsufficientData, "Insufficient Data"
	case KindUpstreamAPI, KindShape:
		return http.StatusBadGateway, TypeUpstream, "Upstream Statistics API Error"
	default:
		// KindNotFitted, KindEmptyDataset and KindDateParse reaching the
		// boundary are programmer errors; report as internal.
		return http.StatusInternalServerError, TypeInternal, "Internal Server Error"
	}
}

// HandleError renders err as an RFC 7807 problem document.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("kind", string(KindOf(err))),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	h.writeProblem(w, problem)
}

// writeProblem serializes a problem document with its media type.
func (h *Handler) writeProblem(w http.ResponseWriter, problem *ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		h.logger.Error("failed to encode problem document",
			slog.String("error", err.Error()))
	}
}

// ErrorToProblem converts an error to RFC 7807 problem details.
func (h *Handler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		status, problemType, title := statusForKind(appErr.Kind)
		problem := NewProblemDetails(status, problemType, title, appErr.Message, r.URL.Path).
			WithExtension("error_code", string(appErr.Kind))
		for k, v := range appErr.Context {
			problem.WithExtension(k, v)
		}
		return problem
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path,
	)
}

// HandlePanic recovers from panics and renders an RFC 7807 error.
func (h *Handler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	h.writeProblem(w, problem)
}

// NotFound returns a standard 404 problem document.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))

	h.writeProblem(w, problem)
}
