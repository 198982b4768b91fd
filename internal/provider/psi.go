package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Provider codes registered in the driver registry.
const (
	// CodeGooglePSI identifies the Google PageSpeed Insights provider.
	CodeGooglePSI = "google_psi"
	// CodeHTTPBasic identifies the generic HTTP crawl provider.
	CodeHTTPBasic = "http_basic"
	// CodeDataForSEO identifies the DataForSEO backlink/SERP provider.
	CodeDataForSEO = "dataforseo"
	// CodeGSCFallback identifies the Search-Console-derived ranking provider.
	CodeGSCFallback = "gsc_fallback"
)

const pageSpeedEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// PageSpeedDriver runs speed checks against the PageSpeed Insights API.
type PageSpeedDriver struct {
	client *http.Client
}

// EstimateCost projects one free API request per check.
func (d *PageSpeedDriver) EstimateCost(_ Params) Estimate {
	return Estimate{Units: 1, UnitName: "requests"}
}

// ValidateSettings requires a non-empty api_key.
func (d *PageSpeedDriver) ValidateSettings(settings Params) error {
	if stringSetting(settings, "api_key") == "" {
		return errors.New("pagespeed: api_key is required")
	}
	return nil
}

// Execute fetches PageSpeed results for params["url"].
func (d *PageSpeedDriver) Execute(ctx context.Context, settings, params Params) (map[string]any, error) {
	target := stringSetting(params, "url")
	if target == "" {
		return nil, errors.New("pagespeed: url param is required")
	}

	query := url.Values{}
	query.Set("url", target)
	query.Set("key", stringSetting(settings, "api_key"))
	if strategy := stringSetting(params, "strategy"); strategy != "" {
		query.Set("strategy", strategy)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, pageSpeedEndpoint+"?"+query.Encode(), nil)
	if errReq != nil {
		return nil, fmt.Errorf("pagespeed: build request: %w", errReq)
	}
	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("pagespeed: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pagespeed: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]any
	if errDecode := json.NewDecoder(resp.Body).Decode(&payload); errDecode != nil {
		return nil, fmt.Errorf("pagespeed: decode response: %w", errDecode)
	}
	return payload, nil
}

// stringSetting reads a trimmed string value from a params map.
func stringSetting(values Params, key string) string {
	if values == nil {
		return ""
	}
	if v, ok := values[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
