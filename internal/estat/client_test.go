package estat

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrolink/internal/config"
	apperrors "macrolink/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.EStatConfig{
		AppID:   "test-app-id",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, testLogger())
}

func TestFetchStatsData(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getStatsData", r.URL.Path)
		gotQuery = map[string]string{
			"appId":       r.URL.Query().Get("appId"),
			"statsDataId": r.URL.Query().Get("statsDataId"),
			"cdCat01":     r.URL.Query().Get("cdCat01"),
			"cdArea":      r.URL.Query().Get("cdArea"),
			"metaGetFlg":  r.URL.Query().Get("metaGetFlg"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(validResponse))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	payload, err := client.FetchStatsData(context.Background(), "0003421913", map[string]string{
		"cdCat01": "0001",
		"cdArea":  "00000",
	})
	require.NoError(t, err)

	assert.Equal(t, "test-app-id", gotQuery["appId"])
	assert.Equal(t, "0003421913", gotQuery["statsDataId"])
	assert.Equal(t, "0001", gotQuery["cdCat01"])
	assert.Equal(t, "00000", gotQuery["cdArea"])
	assert.Equal(t, "Y", gotQuery["metaGetFlg"])

	assert.Len(t, payload.Observations, 2)
}

func TestFetchStatsDataHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchStatsData(context.Background(), "123", nil)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamAPI))
}

func TestFetchStatsDataTransportFailure(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")

	_, err := client.FetchStatsData(context.Background(), "123", nil)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamAPI))
}

func TestFetchStatsDataUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"GET_STATS_DATA": {"RESULT": {"STATUS": 1, "ERROR_MSG": "no such dataset"}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchStatsData(context.Background(), "missing", nil)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamAPI))
	assert.Contains(t, err.Error(), "no such dataset")
}

func TestFetchStatsDataContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(server.URL)
	_, err := client.FetchStatsData(ctx, "123", nil)

	require.Error(t, err)
}
