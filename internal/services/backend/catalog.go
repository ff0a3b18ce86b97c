package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"vigil/internal/services"
)

// SaveConfiguration stores a configuration and returns its id.
func (c *Client) SaveConfiguration(ctx context.Context, input ConfigurationInput) (int64, error) {
	var resp configIDResponse
	if err := c.doJSON(ctx, requestSpec{
		operation: "save configuration",
		method:    http.MethodPost,
		path:      "/api/configuration",
	}, input, &resp); err != nil {
		return 0, err
	}
	if resp.ConfigID <= 0 {
		return 0, services.Wrap(services.ErrBackend, "", "save configuration", fmt.Sprintf("invalid config_id %d in response", resp.ConfigID), nil)
	}
	return resp.ConfigID, nil
}

// LinkConfiguration associates a stored configuration with a video.
func (c *Client) LinkConfiguration(ctx context.Context, videoID, configID int64) error {
	return c.doJSON(ctx, requestSpec{
		operation: "link configuration",
		method:    http.MethodPost,
		path:      "/api/configuration/link",
	}, linkRequest{VideoID: videoID, ConfigID: configID}, nil)
}

// ListConfigurations returns every stored configuration.
func (c *Client) ListConfigurations(ctx context.Context) ([]StoredConfiguration, error) {
	var configs []StoredConfiguration
	err := c.do(ctx, requestSpec{
		operation: "list configurations",
		method:    http.MethodGet,
		path:      "/api/configuration",
	}, &configs)
	return configs, err
}

// GetConfiguration returns one stored configuration.
func (c *Client) GetConfiguration(ctx context.Context, id int64) (StoredConfiguration, error) {
	var cfg StoredConfiguration
	err := c.do(ctx, requestSpec{
		operation: "get configuration",
		method:    http.MethodGet,
		path:      fmt.Sprintf("/api/configuration/%d", id),
	}, &cfg)
	return cfg, err
}

// UpdateConfiguration replaces a stored configuration.
func (c *Client) UpdateConfiguration(ctx context.Context, id int64, input ConfigurationInput) error {
	return c.doJSON(ctx, requestSpec{
		operation: "update configuration",
		method:    http.MethodPut,
		path:      fmt.Sprintf("/api/configuration/%d", id),
	}, input, nil)
}

// DeleteConfiguration removes a stored configuration.
func (c *Client) DeleteConfiguration(ctx context.Context, id int64) error {
	return c.do(ctx, requestSpec{
		operation: "delete configuration",
		method:    http.MethodDelete,
		path:      fmt.Sprintf("/api/configuration/%d", id),
	}, nil)
}

// ListResults returns previously analysed videos.
func (c *Client) ListResults(ctx context.Context) ([]AnalysisResult, error) {
	var results []AnalysisResult
	err := c.do(ctx, requestSpec{
		operation: "list results",
		method:    http.MethodGet,
		path:      "/api/results/xclip-preprocessing",
	}, &results)
	return results, err
}

// DeleteResult removes a previously analysed video and its artifacts.
func (c *Client) DeleteResult(ctx context.Context, videoID int64) error {
	return c.do(ctx, requestSpec{
		operation: "delete result",
		method:    http.MethodDelete,
		path:      fmt.Sprintf("/api/results/xclip-preprocessing/%d", videoID),
	}, nil)
}

// VideoMetadata returns metadata for an analysed video.
func (c *Client) VideoMetadata(ctx context.Context, videoID int64) (VideoMetadata, error) {
	var meta VideoMetadata
	err := c.do(ctx, requestSpec{
		operation: "video metadata",
		method:    http.MethodGet,
		path:      fmt.Sprintf("/api/video/%d", videoID),
	}, &meta)
	return meta, err
}

// Detections returns detections and anomaly scores for a video.
func (c *Client) Detections(ctx context.Context, videoID int64) ([]Detection, error) {
	var detections []Detection
	err := c.do(ctx, requestSpec{
		operation: "detections",
		method:    http.MethodGet,
		path:      fmt.Sprintf("/api/detections/%d", videoID),
	}, &detections)
	return detections, err
}

// Ping fetches the backend root and returns its version message.
func (c *Client) Ping(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.do(ctx, requestSpec{
		operation: "ping",
		method:    http.MethodGet,
		path:      "/",
	}, &info)
	info.Message = strings.TrimSpace(info.Message)
	return info, err
}
