package services

import (
	"bytes"
	"context"
	"log/slog"

	"macrolink/internal/exporter"
)

// ExportService renders datasets as downloadable xlsx workbooks.
type ExportService struct {
	analysis *AnalysisService
	writer   *exporter.WorkbookWriter
	logger   *slog.Logger
}

// NewExportService creates the export service.
func NewExportService(analysis *AnalysisService, logger *slog.Logger) *ExportService {
	return &ExportService{
		analysis: analysis,
		writer:   exporter.NewWorkbookWriter(logger),
		logger:   logger.With(slog.String("service", "export")),
	}
}

// Workbook fetches and pivots the dataset, then serializes it.
func (s *ExportService) Workbook(ctx context.Context, statsDataID, areaCode string) (*bytes.Buffer, error) {
	wide, err := s.analysis.ExportWide(ctx, statsDataID, areaCode)
	if err != nil {
		return nil, err
	}
	return s.writer.Write(wide)
}
