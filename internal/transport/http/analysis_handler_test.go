package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macrolink/internal/errors"
	"macrolink/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockAnalysisService struct {
	predictResp *services.PredictResponse
	wideResp    *services.WideResponse
	err         error
	gotRequest  services.PredictRequest
}

func (m *mockAnalysisService) Predict(ctx context.Context, req services.PredictRequest) (*services.PredictResponse, error) {
	m.gotRequest = req
	return m.predictResp, m.err
}

func (m *mockAnalysisService) WideFormat(ctx context.Context, statsDataID, areaCode string) (*services.WideResponse, error) {
	return m.wideResp, m.err
}

type mockWorkbookService struct {
	buf *bytes.Buffer
	err error
}

func (m *mockWorkbookService) Workbook(ctx context.Context, statsDataID, areaCode string) (*bytes.Buffer, error) {
	return m.buf, m.err
}

func newAnalysisRouter(analysis AnalysisService, workbook WorkbookService) chi.Router {
	logger := testLogger()
	handler := NewAnalysisHandler(analysis, workbook, logger, apperrors.NewHandler(logger))
	r := chi.NewRouter()
	r.Mount("/api/analysis", handler.Routes())
	return r
}

func samplePredictResponse() *services.PredictResponse {
	return &services.PredictResponse{
		Metadata: services.PredictMetadata{
			StatsDataID:    "0003421913",
			LjungBoxPValue: 0.42,
			IsWhiteNoise:   true,
		},
		History: services.SeriesPayload{
			Index:  []string{"2023-01-01"},
			Values: []float64{100},
		},
		Forecast: services.ForecastPayload{
			Index: []string{"2023-02-01"},
			Mean:  []float64{101},
			Lower: []float64{95},
			Upper: []float64{107},
		},
	}
}

func TestPredictHandler(t *testing.T) {
	mock := &mockAnalysisService{predictResp: samplePredictResponse()}
	router := newAnalysisRouter(mock, &mockWorkbookService{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/analysis/predict/0003421913?cat=0001&area=00000&n_periods=6", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "0003421913", mock.gotRequest.StatsDataID)
	assert.Equal(t, "0001", mock.gotRequest.CategoryCode)
	assert.Equal(t, "00000", mock.gotRequest.AreaCode)
	assert.Equal(t, 6, mock.gotRequest.NPeriods)

	var resp services.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0003421913", resp.Metadata.StatsDataID)
	assert.InDelta(t, 0.42, resp.Metadata.LjungBoxPValue, 1e-9)
	assert.Equal(t, []string{"2023-02-01"}, resp.Forecast.Index)
}

func TestPredictHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "bad n_periods", url: "/api/analysis/predict/0003421913?n_periods=abc"},
		{name: "negative n_periods", url: "/api/analysis/predict/0003421913?n_periods=-3"},
		{name: "non-alphanumeric id", url: "/api/analysis/predict/0003-421913"},
		{name: "id too short", url: "/api/analysis/predict/12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAnalysisRouter(&mockAnalysisService{}, &mockWorkbookService{})

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
		})
	}
}

func TestPredictHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "insufficient data",
			err:        apperrors.NewInsufficientDataError(10, 24),
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "no data",
			err:        apperrors.NewEmptyResultError("no rows"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "upstream failure",
			err:        apperrors.NewUpstreamAPIError("100", "bad app id"),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAnalysisRouter(&mockAnalysisService{err: tt.err}, &mockWorkbookService{})

			req := httptest.NewRequest(http.MethodGet, "/api/analysis/predict/0003421913", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var problem map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.NotEmpty(t, problem["title"])
			assert.EqualValues(t, tt.wantStatus, problem["status"])
		})
	}
}

func TestWideFormatHandler(t *testing.T) {
	wide := &services.WideResponse{}
	wide.Meta.Rows = 2
	wide.Meta.Columns = []string{"穀類"}
	wide.Data = []map[string]interface{}{
		{"date": "2023-01-01", "穀類": 100.0},
		{"date": "2023-02-01", "穀類": 101.0},
	}
	router := newAnalysisRouter(&mockAnalysisService{wideResp: wide}, &mockWorkbookService{})

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/0003421913", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp services.WideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Meta.Rows)
	assert.Len(t, resp.Data, 2)
}

func TestExportHandler(t *testing.T) {
	workbook := &mockWorkbookService{buf: bytes.NewBufferString("PK\x03\x04fake-xlsx")}
	router := newAnalysisRouter(&mockAnalysisService{}, workbook)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/0003421913/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="0003421913.xlsx"`)
	assert.NotZero(t, rec.Body.Len())
}

func TestExportHandlerError(t *testing.T) {
	workbook := &mockWorkbookService{err: apperrors.NewEmptyResultError("no data")}
	router := newAnalysisRouter(&mockAnalysisService{}, workbook)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/0003421913/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
