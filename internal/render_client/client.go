package render_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RenderRequest is the payload sent to the isolated renderer sidecar.
type RenderRequest struct {
	URL               string `json:"url"`
	Job               string `json:"job"`
	OutSubdir         string `json:"outSubdir"`
	AllowTargetOrigin bool   `json:"allowTargetOrigin"`
}

// Client talks to the renderer sidecar over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Render asks the sidecar to open the URL in isolation and write its
// artifacts under the given subdirectory. Any non-2xx response is an error
// carrying the sidecar's response body.
func (c *Client) Render(ctx context.Context, req RenderRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("dispatching render",
		zap.String("job", req.Job),
		zap.Bool("allow_target_origin", req.AllowTargetOrigin))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call renderer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
