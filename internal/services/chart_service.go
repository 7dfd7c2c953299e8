package services

import (
	"context"
	"log/slog"

	apperrors "macrolink/internal/errors"
)

// ChartTrace is one plotted series in Plotly's declarative trace form.
type ChartTrace struct {
	X    []string  `json:"x"`
	Y    []float64 `json:"y"`
	Name string    `json:"name"`
	Type string    `json:"type"`
	Mode string    `json:"mode"`
}

// ChartLayout carries the figure-level presentation settings.
type ChartLayout struct {
	Title    string     `json:"title"`
	Template string     `json:"template"`
	XAxis    axisLayout `json:"xaxis"`
	YAxis    axisLayout `json:"yaxis"`
}

type axisLayout struct {
	Title string `json:"title"`
}

// ChartFigure is a Plotly figure: traces plus layout, consumable
// directly by Plotly.newPlot on the client.
type ChartFigure struct {
	Data   []ChartTrace `json:"data"`
	Layout ChartLayout  `json:"layout"`
}

// ChartService renders datasets as Plotly line-chart figures.
type ChartService struct {
	analysis *AnalysisService
	logger   *slog.Logger
}

// NewChartService creates the chart service on top of the analysis
// pipeline.
func NewChartService(analysis *AnalysisService, logger *slog.Logger) *ChartService {
	return &ChartService{
		analysis: analysis,
		logger:   logger.With(slog.String("service", "chart")),
	}
}

// Figure builds a line chart with one trace per category column.
func (s *ChartService) Figure(ctx context.Context, statsDataID, categoryCode, areaCode string) (*ChartFigure, error) {
	wide, err := s.analysis.fetchWide(ctx, statsDataID, map[string]string{
		"cdCat01": categoryCode,
		"cdArea":  areaCode,
	})
	if err != nil {
		return nil, err
	}
	if wide.Empty() {
		return nil, apperrors.NewEmptyResultError("no data to chart")
	}

	fig := &ChartFigure{
		Data: make([]ChartTrace, 0, len(wide.Columns)),
		Layout: ChartLayout{
			Title:    statsDataID,
			Template: "plotly_white",
			XAxis:    axisLayout{Title: "date"},
			YAxis:    axisLayout{Title: "value"},
		},
	}

	index := isoDates(wide.Dates)
	for _, col := range wide.Columns {
		values, ok := wide.Column(col)
		if !ok {
			continue
		}
		fig.Data = append(fig.Data, ChartTrace{
			X:    index,
			Y:    values,
			Name: col,
			Type: "scatter",
			Mode: "lines",
		})
	}

	s.logger.DebugContext(ctx, "figure built",
		slog.String("stats_id", statsDataID),
		slog.Int("traces", len(fig.Data)),
	)
	return fig, nil
}
