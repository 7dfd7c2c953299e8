package http

import (
	"bytes"
	"context"

	"macrolink/internal/services"
)

// AnalysisService is the surface the analysis handler needs; the
// concrete implementation lives in internal/services.
type AnalysisService interface {
	Predict(ctx context.Context, req services.PredictRequest) (*services.PredictResponse, error)
	WideFormat(ctx context.Context, statsDataID, areaCode string) (*services.WideResponse, error)
}

// WorkbookService produces a serialized spreadsheet for one dataset.
type WorkbookService interface {
	Workbook(ctx context.Context, statsDataID, areaCode string) (*bytes.Buffer, error)
}

// ChartService renders a dataset as a Plotly figure.
type ChartService interface {
	Figure(ctx context.Context, statsDataID, categoryCode, areaCode string) (*services.ChartFigure, error)
}

// HealthService reports liveness and build identity.
type HealthService interface {
	Check(ctx context.Context) *services.HealthStatus
	Version(ctx context.Context) *services.VersionInfo
}
