package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrolink/internal/config"
	apperrors "macrolink/internal/errors"
	"macrolink/internal/estat"
	"macrolink/internal/infrastructure"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct {
	payload   *estat.StatsPayload
	err       error
	gotID     string
	gotParams map[string]string
}

func (f *stubFetcher) FetchStatsData(ctx context.Context, statsDataID string, params map[string]string) (*estat.StatsPayload, error) {
	f.gotID = statsDataID
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

// seasonalPayload builds a payload with one 品目 category and n monthly
// observations starting January 2020, seasonal with period 12.
func seasonalPayload(n int) *estat.StatsPayload {
	obs := make([]estat.Observation, 0, n)
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, i, 0)
		value := 100 + 10*math.Sin(2*math.Pi*float64(i)/12)
		obs = append(obs, estat.Observation{
			"@cat01": "0001",
			"@time":  fmt.Sprintf("%04d%02d", d.Year(), int(d.Month())),
			"$":      fmt.Sprintf("%.4f", value),
		})
	}

	return &estat.StatsPayload{
		Classifications: estat.NewClassificationSet([]estat.Classification{
			{
				ID:     "cat01",
				Name:   "品目分類",
				Labels: map[string]string{"0001": "穀類"},
			},
			{
				ID:     "time",
				Name:   "時間軸（月次）",
				Labels: map[string]string{},
			},
		}),
		Observations: obs,
	}
}

func newTestService(fetcher StatsFetcher) *AnalysisService {
	return NewAnalysisService(fetcher, config.Default().Analysis,
		infrastructure.NewMetrics(), testLogger())
}

func TestPredict(t *testing.T) {
	fetcher := &stubFetcher{payload: seasonalPayload(36)}
	svc := newTestService(fetcher)

	resp, err := svc.Predict(context.Background(), PredictRequest{
		StatsDataID:  "0003421913",
		CategoryCode: "0001",
		AreaCode:     "00000",
		NPeriods:     12,
	})
	require.NoError(t, err)

	assert.Equal(t, "0003421913", fetcher.gotID)
	assert.Equal(t, "0001", fetcher.gotParams["cdCat01"])
	assert.Equal(t, "00000", fetcher.gotParams["cdArea"])

	assert.Equal(t, "0003421913", resp.Metadata.StatsDataID)
	assert.Equal(t, "0001", resp.Metadata.CategoryCode)
	assert.Equal(t, 12, resp.Metadata.SeasonalOrder.Period)
	assert.Equal(t, 1, resp.Metadata.SeasonalOrder.D)

	assert.Len(t, resp.History.Index, 36)
	assert.Len(t, resp.History.Values, 36)
	assert.Equal(t, "2020-01-01", resp.History.Index[0])

	require.Len(t, resp.Forecast.Index, 12)
	assert.Equal(t, "2023-01-01", resp.Forecast.Index[0])
	for i := range resp.Forecast.Mean {
		assert.LessOrEqual(t, resp.Forecast.Lower[i], resp.Forecast.Mean[i])
		assert.GreaterOrEqual(t, resp.Forecast.Upper[i], resp.Forecast.Mean[i])
	}
}

func TestPredictDefaultsHorizon(t *testing.T) {
	svc := newTestService(&stubFetcher{payload: seasonalPayload(36)})

	resp, err := svc.Predict(context.Background(), PredictRequest{StatsDataID: "1"})
	require.NoError(t, err)
	assert.Len(t, resp.Forecast.Index, config.Default().Analysis.DefaultHorizon)
}

func TestPredictHorizonCap(t *testing.T) {
	svc := newTestService(&stubFetcher{payload: seasonalPayload(36)})

	_, err := svc.Predict(context.Background(), PredictRequest{StatsDataID: "1", NPeriods: 600})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestPredictInsufficientData(t *testing.T) {
	svc := newTestService(&stubFetcher{payload: seasonalPayload(12)})

	_, err := svc.Predict(context.Background(), PredictRequest{StatsDataID: "1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInsufficientData))
	assert.Contains(t, err.Error(), "12")
	assert.Contains(t, err.Error(), "24")
}

func TestPredictUpstreamErrorPropagates(t *testing.T) {
	svc := newTestService(&stubFetcher{
		err: apperrors.NewUpstreamAPIError("100", "認証に失敗しました。"),
	})

	_, err := svc.Predict(context.Background(), PredictRequest{StatsDataID: "1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamAPI))
}

func TestPredictEmptyParamsOmitted(t *testing.T) {
	fetcher := &stubFetcher{payload: seasonalPayload(36)}
	svc := newTestService(fetcher)

	_, err := svc.Predict(context.Background(), PredictRequest{StatsDataID: "1"})
	require.NoError(t, err)

	_, hasCat := fetcher.gotParams["cdCat01"]
	_, hasArea := fetcher.gotParams["cdArea"]
	assert.False(t, hasCat, "empty category filter must not be sent upstream")
	assert.False(t, hasArea, "empty area filter must not be sent upstream")
}

func TestWideFormat(t *testing.T) {
	svc := newTestService(&stubFetcher{payload: seasonalPayload(36)})

	resp, err := svc.WideFormat(context.Background(), "1", "")
	require.NoError(t, err)

	assert.Equal(t, 36, resp.Meta.Rows)
	require.Equal(t, []string{"穀類"}, resp.Meta.Columns)
	require.Len(t, resp.Data, 36)
	assert.Equal(t, "2020-01-01", resp.Data[0]["date"])
	assert.InDelta(t, 100.0, resp.Data[0]["穀類"].(float64), 1e-3)
}

func TestExportWide(t *testing.T) {
	svc := newTestService(&stubFetcher{payload: seasonalPayload(24)})

	wide, err := svc.ExportWide(context.Background(), "1", "")
	require.NoError(t, err)
	assert.Equal(t, 24, len(wide.Dates))
	assert.Equal(t, []string{"穀類"}, wide.Columns)
}
