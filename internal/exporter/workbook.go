// Package exporter renders wide-format tables as downloadable
// spreadsheet workbooks.
package exporter

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"macrolink/internal/dataprocessing"
)

const sheetName = "data"

// WorkbookWriter renders a wide table into an xlsx workbook: a frozen
// header row, a date column and one numeric column per category.
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer.
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	return &WorkbookWriter{
		logger: logger.With(slog.String("component", "workbook_writer")),
	}
}

// Write renders the table and returns the serialized workbook.
func (w *WorkbookWriter) Write(table *dataprocessing.WideTable) (*bytes.Buffer, error) {
	if table == nil || table.Empty() {
		return nil, fmt.Errorf("nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, 0, len(table.Columns)+1)
	header = append(header, "date")
	for _, col := range table.Columns {
		header = append(header, col)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, date := range table.Dates {
		row := make([]interface{}, 0, len(table.Columns)+1)
		row = append(row, date.Format("2006-01-02"))
		for j := range table.Columns {
			row = append(row, table.Values[i][j])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 12); err != nil {
		return nil, fmt.Errorf("failed to size date column: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	w.logger.Debug("workbook written",
		slog.Int("rows", len(table.Dates)),
		slog.Int("columns", len(table.Columns)),
		slog.Int("bytes", buf.Len()),
	)
	return buf, nil
}
