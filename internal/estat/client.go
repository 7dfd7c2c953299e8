package estat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"macrolink/internal/config"
	apperrors "macrolink/internal/errors"
)

// Client retrieves coded statistical datasets from the statistics API.
type Client struct {
	baseURL    string
	appID      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a statistics API client.
func NewClient(cfg config.EStatConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		appID:   cfg.AppID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(slog.String("component", "estat_client")),
	}
}

// FetchStatsData retrieves one dataset by id with optional axis filters
// (e.g. "cdCat01", "cdArea") and returns the decoded payload.
func (c *Client) FetchStatsData(ctx context.Context, statsDataID string, params map[string]string) (*StatsPayload, error) {
	query := url.Values{}
	query.Set("appId", c.appID)
	query.Set("statsDataId", statsDataID)
	query.Set("metaGetFlg", "Y")
	query.Set("cntGetFlg", "N")
	for k, v := range params {
		query.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/getStatsData?%s", c.baseURL, query.Encode())

	c.logger.InfoContext(ctx, "requesting statistics API",
		slog.String("stats_data_id", statsDataID),
		slog.Int("filter_count", len(params)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewTransportError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewTransportError(
			fmt.Errorf("unexpected HTTP status %d from statistics API", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError(err)
	}

	payload, err := decodePayload(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "statistics API payload rejected",
			slog.String("stats_data_id", statsDataID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.InfoContext(ctx, "statistics API payload decoded",
		slog.String("stats_data_id", statsDataID),
		slog.Int("observations", len(payload.Observations)),
		slog.Int("classified_axes", payload.Classifications.Len()),
	)

	return payload, nil
}
