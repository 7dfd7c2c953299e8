// Package services orchestrates the normalization pipeline and the
// forecast engine behind the HTTP layer.
package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"macrolink/internal/config"
	"macrolink/internal/dataprocessing"
	apperrors "macrolink/internal/errors"
	"macrolink/internal/estat"
	"macrolink/internal/forecast"
	"macrolink/internal/infrastructure"
)

// categoryPattern identifies the item-classification axis among label
// columns; e-Stat names it "品目分類（2020年改定）" and similar.
const categoryPattern = "品目"

// StatsFetcher retrieves coded datasets from the statistics API.
type StatsFetcher interface {
	FetchStatsData(ctx context.Context, statsDataID string, params map[string]string) (*estat.StatsPayload, error)
}

// PredictRequest carries the parameters of one forecast request.
type PredictRequest struct {
	StatsDataID  string
	CategoryCode string
	AreaCode     string
	NPeriods     int
}

// SeriesPayload is a series as parallel arrays of ISO dates and values.
type SeriesPayload struct {
	Index  []string  `json:"index"`
	Values []float64 `json:"values"`
}

// ForecastPayload is the forecast horizon as parallel arrays.
type ForecastPayload struct {
	Index []string  `json:"index"`
	Mean  []float64 `json:"mean"`
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// PredictMetadata describes the chosen model and its diagnostics.
type PredictMetadata struct {
	StatsDataID    string                 `json:"stats_id"`
	CategoryCode   string                 `json:"cat"`
	AreaCode       string                 `json:"area"`
	Order          forecast.Order         `json:"order"`
	SeasonalOrder  forecast.SeasonalOrder `json:"seasonal_order"`
	AIC            float64                `json:"aic"`
	IsWhiteNoise   bool                   `json:"is_white_noise"`
	LjungBoxPValue float64                `json:"lb_pvalue"`
}

// PredictResponse is the forecast endpoint payload.
type PredictResponse struct {
	Metadata PredictMetadata `json:"metadata"`
	History  SeriesPayload   `json:"history"`
	Forecast ForecastPayload `json:"forecast"`
}

// WideResponse is the wide-format table payload.
type WideResponse struct {
	Meta struct {
		Rows    int      `json:"rows"`
		Columns []string `json:"columns"`
	} `json:"meta"`
	Data []map[string]interface{} `json:"data"`
}

// AnalysisService runs the fetch → tidy → wide → forecast pipeline. A
// weighted semaphore bounds concurrent model searches, which are
// CPU-bound and potentially slow; each request gets its own engine
// instance, so no locking is needed inside the pipeline.
type AnalysisService struct {
	fetcher     StatsFetcher
	transformer *dataprocessing.Transformer
	projector   *dataprocessing.Projector
	cfg         config.AnalysisConfig
	searchSlots *semaphore.Weighted
	metrics     *infrastructure.Metrics
	logger      *slog.Logger
}

// NewAnalysisService creates the analysis service.
func NewAnalysisService(
	fetcher StatsFetcher,
	cfg config.AnalysisConfig,
	metrics *infrastructure.Metrics,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		fetcher:     fetcher,
		transformer: dataprocessing.NewTransformer(logger),
		projector:   dataprocessing.NewProjector(logger),
		cfg:         cfg,
		searchSlots: semaphore.NewWeighted(int64(cfg.MaxConcurrentSearches)),
		metrics:     metrics,
		logger:      logger.With(slog.String("service", "analysis")),
	}
}

// Predict runs the full forecast pipeline for one dataset column.
func (s *AnalysisService) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	if req.NPeriods < 1 {
		req.NPeriods = s.cfg.DefaultHorizon
	}
	if req.NPeriods > s.cfg.MaxHorizon {
		s.countForecast("error")
		return nil, apperrors.NewValidationError("n_periods",
			"exceeds the configured maximum horizon")
	}

	wide, err := s.fetchWide(ctx, req.StatsDataID, map[string]string{
		"cdCat01": req.CategoryCode,
		"cdArea":  req.AreaCode,
	})
	if err != nil {
		s.countForecast(outcomeForError(err))
		return nil, err
	}

	dates, values, ok := wide.FirstColumn()
	if !ok {
		s.countForecast("no_data")
		return nil, apperrors.NewEmptyResultError("pivoted table has no value column")
	}
	if len(values) < s.cfg.MinObservations {
		s.countForecast("insufficient_data")
		return nil, apperrors.NewInsufficientDataError(len(values), s.cfg.MinObservations)
	}

	points := make([]forecast.DataPoint, len(values))
	for i := range values {
		points[i] = forecast.DataPoint{Date: dates[i], Value: values[i]}
	}

	engine, err := forecast.New(points, s.logger)
	if err != nil {
		s.countForecast("error")
		return nil, err
	}

	fit, diag, fc, err := s.runModelSearch(ctx, engine, req.NPeriods)
	if err != nil {
		s.countForecast(outcomeForError(err))
		return nil, err
	}

	histDates, histValues := engine.History()

	resp := &PredictResponse{
		Metadata: PredictMetadata{
			StatsDataID:    req.StatsDataID,
			CategoryCode:   req.CategoryCode,
			AreaCode:       req.AreaCode,
			Order:          fit.Order,
			SeasonalOrder:  fit.SeasonalOrder,
			AIC:            fit.AIC,
			IsWhiteNoise:   diag.IsWhiteNoise,
			LjungBoxPValue: diag.LjungBoxPValue,
		},
		History: SeriesPayload{
			Index:  isoDates(histDates),
			Values: histValues,
		},
		Forecast: forecastPayload(fc),
	}

	s.countForecast("ok")
	return resp, nil
}

// runModelSearch executes fit, diagnose and predict under a search
// slot. A caller that times out while waiting for a slot gets the
// context error; an in-flight search itself is never cancelled, the
// abandoning caller simply discards the result.
func (s *AnalysisService) runModelSearch(ctx context.Context, engine *forecast.Engine, nPeriods int) (*forecast.ModelFit, *forecast.Diagnostics, *forecast.Forecast, error) {
	if err := s.searchSlots.Acquire(ctx, 1); err != nil {
		return nil, nil, nil, err
	}
	defer s.searchSlots.Release(1)

	start := time.Now()
	fit, err := engine.Fit(true, s.cfg.SeasonalPeriod)
	s.metrics.ModelSearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, nil, err
	}

	s.logger.InfoContext(ctx, "model fitted",
		slog.Int("observations", engine.Len()),
		slog.Float64("aic", fit.AIC),
		slog.Duration("search_duration", time.Since(start)),
	)

	diag, err := engine.Diagnose()
	if err != nil {
		return nil, nil, nil, err
	}

	fc, err := engine.Predict(nPeriods, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	return fit, diag, fc, nil
}

// WideFormat returns the dataset pivoted into the dense wide form.
func (s *AnalysisService) WideFormat(ctx context.Context, statsDataID, areaCode string) (*WideResponse, error) {
	wide, err := s.fetchWide(ctx, statsDataID, map[string]string{"cdArea": areaCode})
	if err != nil {
		return nil, err
	}
	if wide.Empty() {
		return nil, apperrors.NewEmptyResultError("no data matched the requested filters")
	}

	resp := &WideResponse{}
	resp.Meta.Rows = len(wide.Dates)
	resp.Meta.Columns = wide.Columns
	resp.Data = make([]map[string]interface{}, len(wide.Dates))
	for i, d := range wide.Dates {
		record := make(map[string]interface{}, len(wide.Columns)+1)
		record["date"] = d.Format("2006-01-02")
		for j, col := range wide.Columns {
			record[col] = wide.Values[i][j]
		}
		resp.Data[i] = record
	}
	return resp, nil
}

// ExportWide returns the wide table itself, for the xlsx exporter.
func (s *AnalysisService) ExportWide(ctx context.Context, statsDataID, areaCode string) (*dataprocessing.WideTable, error) {
	wide, err := s.fetchWide(ctx, statsDataID, map[string]string{"cdArea": areaCode})
	if err != nil {
		return nil, err
	}
	if wide.Empty() {
		return nil, apperrors.NewEmptyResultError("no data matched the requested filters")
	}
	return wide, nil
}

// fetchWide runs fetch → tidy → pivot with the category column located
// by name pattern when present.
func (s *AnalysisService) fetchWide(ctx context.Context, statsDataID string, params map[string]string) (*dataprocessing.WideTable, error) {
	for k, v := range params {
		if v == "" {
			delete(params, k)
		}
	}

	payload, err := s.fetcher.FetchStatsData(ctx, statsDataID, params)
	if err != nil {
		s.countUpstream(err)
		return nil, err
	}
	s.countUpstream(nil)

	tidy, err := s.transformer.Transform(payload)
	if err != nil {
		return nil, err
	}

	categoryCol, _ := tidy.CategoryColumn(categoryPattern)
	return s.projector.Pivot(tidy, categoryCol), nil
}

func (s *AnalysisService) countForecast(outcome string) {
	s.metrics.ForecastRequests.WithLabelValues(outcome).Inc()
}

func (s *AnalysisService) countUpstream(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.UpstreamRequests.WithLabelValues(outcome).Inc()
}

func outcomeForError(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.KindEmptyResult:
		return "no_data"
	case apperrors.KindInsufficientData:
		return "insufficient_data"
	case apperrors.KindUpstreamAPI, apperrors.KindShape:
		return "upstream_error"
	default:
		return "error"
	}
}

func isoDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format("2006-01-02")
	}
	return out
}

func forecastPayload(fc *forecast.Forecast) ForecastPayload {
	n := len(fc.Points)
	payload := ForecastPayload{
		Index: make([]string, n),
		Mean:  make([]float64, n),
		Lower: make([]float64, n),
		Upper: make([]float64, n),
	}
	for i, p := range fc.Points {
		payload.Index[i] = p.Date.Format("2006-01-02")
		payload.Mean[i] = p.Mean
		payload.Lower[i] = p.Lower
		payload.Upper[i] = p.Upper
	}
	return payload
}
