package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBasicDriver performs a plain HTTP fetch of the target page and
// reports status, size, and timing. It needs no credentials.
type HTTPBasicDriver struct {
	client *http.Client
}

// EstimateCost projects one request with no external cost.
func (d *HTTPBasicDriver) EstimateCost(_ Params) Estimate {
	return Estimate{Units: 1, UnitName: "requests"}
}

// ValidateSettings always passes; the driver is credential-free.
func (d *HTTPBasicDriver) ValidateSettings(_ Params) error { return nil }

// Execute fetches params["url"] and summarizes the response.
func (d *HTTPBasicDriver) Execute(ctx context.Context, _, params Params) (map[string]any, error) {
	target := stringSetting(params, "url")
	if target == "" {
		return nil, errors.New("http crawl: url param is required")
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if errReq != nil {
		return nil, fmt.Errorf("http crawl: build request: %w", errReq)
	}
	req.Header.Set("User-Agent", "rankpilot-crawler/1.0")

	started := time.Now()
	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("http crawl: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	size, errRead := io.Copy(io.Discard, resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("http crawl: read body: %w", errRead)
	}

	return map[string]any{
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"body_bytes":   size,
		"duration_ms":  time.Since(started).Milliseconds(),
		"final_url":    resp.Request.URL.String(),
	}, nil
}
