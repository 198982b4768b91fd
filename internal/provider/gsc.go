package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"
)

const searchConsoleBaseURL = "https://searchconsole.googleapis.com/webmasters/v3"

// SearchConsoleDriver derives keyword positions from Search Console
// analytics. It serves as the ranking fallback when no paid SERP provider
// is configured; positions are averages over recent impressions rather
// than live SERP scrapes.
type SearchConsoleDriver struct {
	client *http.Client
}

// EstimateCost projects free API queries, one per keyword batch.
func (d *SearchConsoleDriver) EstimateCost(_ Params) Estimate {
	return Estimate{Units: 1, UnitName: "requests"}
}

// ValidateSettings requires an OAuth access token and the verified site URL.
func (d *SearchConsoleDriver) ValidateSettings(settings Params) error {
	if stringSetting(settings, "access_token") == "" {
		return errors.New("search console: access_token is required")
	}
	if stringSetting(settings, "site_url") == "" {
		return errors.New("search console: site_url is required")
	}
	return nil
}

// Execute queries search analytics filtered to the requested keywords.
func (d *SearchConsoleDriver) Execute(ctx context.Context, settings, params Params) (map[string]any, error) {
	site := stringSetting(settings, "site_url")

	startDate, endDate := analyticsWindow(params)
	body := map[string]any{
		"startDate":  startDate,
		"endDate":    endDate,
		"dimensions": []string{"query"},
		"rowLimit":   250,
	}
	if keywords := keywordList(params); len(keywords) > 0 {
		filters := make([]map[string]any, 0, len(keywords))
		for _, keyword := range keywords {
			filters = append(filters, map[string]any{
				"dimension":  "query",
				"operator":   "equals",
				"expression": keyword,
			})
		}
		body["dimensionFilterGroups"] = []map[string]any{{"groupType": "or", "filters": filters}}
	}

	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return nil, fmt.Errorf("search console: marshal query: %w", errMarshal)
	}

	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query", searchConsoleBaseURL, url.PathEscape(site))
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return nil, fmt.Errorf("search console: build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+stringSetting(settings, "access_token"))
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("search console: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search console: unexpected status %d", resp.StatusCode)
	}

	var out map[string]any
	if errDecode := json.NewDecoder(resp.Body).Decode(&out); errDecode != nil {
		return nil, fmt.Errorf("search console: decode response: %w", errDecode)
	}
	out["positions"] = searchConsolePositions(out)
	return out, nil
}

// analyticsWindow returns the reporting date range from params, falling
// back to the trailing week. Search Console data lags by a few days, so
// the default window ends two days back.
func analyticsWindow(params Params) (string, string) {
	start := stringSetting(params, "start_date")
	end := stringSetting(params, "end_date")
	if start != "" && end != "" {
		return start, end
	}
	now := time.Now().UTC()
	return now.AddDate(0, 0, -9).Format("2006-01-02"), now.AddDate(0, 0, -2).Format("2006-01-02")
}

// searchConsolePositions maps the analytics rows into a keyword→position
// map. Search Console reports fractional average positions; they round
// to the nearest rank. Keywords without a row are omitted; callers treat
// omission as "not found".
func searchConsolePositions(payload map[string]any) map[string]any {
	positions := make(map[string]any)
	rows, _ := payload["rows"].([]any)
	for _, rawRow := range rows {
		row, okRow := rawRow.(map[string]any)
		if !okRow {
			continue
		}
		keys, _ := row["keys"].([]any)
		if len(keys) == 0 {
			continue
		}
		keyword, _ := keys[0].(string)
		if keyword == "" {
			continue
		}
		position, okPosition := row["position"].(float64)
		if !okPosition || position <= 0 {
			continue
		}
		positions[keyword] = int(math.Round(position))
	}
	return positions
}
