package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const dataForSEOBaseURL = "https://api.dataforseo.com/v3"

// Per-unit estimated prices in cents, from the vendor's published rates.
const (
	dataForSEOSerpCheckCents = 1
	dataForSEOBacklinksCents = 5
)

// DataForSEODriver serves backlink fetches and SERP rank checks through
// the DataForSEO API using basic-auth credentials.
type DataForSEODriver struct {
	client *http.Client
}

// EstimateCost projects units from the keyword batch size for SERP tasks
// and one API call otherwise.
func (d *DataForSEODriver) EstimateCost(params Params) Estimate {
	if keywords := keywordList(params); len(keywords) > 0 {
		units := int64(len(keywords))
		return Estimate{Units: units, UnitName: "serp_checks", Cents: units * dataForSEOSerpCheckCents}
	}
	return Estimate{Units: 1, UnitName: "api_calls", Cents: dataForSEOBacklinksCents}
}

// ValidateSettings requires basic-auth login and password.
func (d *DataForSEODriver) ValidateSettings(settings Params) error {
	if stringSetting(settings, "login") == "" || stringSetting(settings, "password") == "" {
		return errors.New("dataforseo: login and password are required")
	}
	return nil
}

// Execute posts the task to the endpoint matching its type: SERP checks
// when params carry keywords, a backlinks summary otherwise.
func (d *DataForSEODriver) Execute(ctx context.Context, settings, params Params) (map[string]any, error) {
	target := stringSetting(params, "target")
	if target == "" {
		return nil, errors.New("dataforseo: target param is required")
	}

	path := "/backlinks/summary/live"
	body := []map[string]any{{"target": target}}
	if keywords := keywordList(params); len(keywords) > 0 {
		path = "/serp/google/organic/live/regular"
		body = body[:0]
		for _, keyword := range keywords {
			body = append(body, map[string]any{"keyword": keyword, "target": target})
		}
	}

	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return nil, fmt.Errorf("dataforseo: marshal tasks: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, dataForSEOBaseURL+path, bytes.NewReader(payload))
	if errReq != nil {
		return nil, fmt.Errorf("dataforseo: build request: %w", errReq)
	}
	req.SetBasicAuth(stringSetting(settings, "login"), stringSetting(settings, "password"))
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("dataforseo: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataforseo: unexpected status %d", resp.StatusCode)
	}

	var out map[string]any
	if errDecode := json.NewDecoder(resp.Body).Decode(&out); errDecode != nil {
		return nil, fmt.Errorf("dataforseo: decode response: %w", errDecode)
	}
	if keywords := keywordList(params); len(keywords) > 0 {
		out["positions"] = extractPositions(out, target)
	}
	return out, nil
}

// extractPositions flattens the vendor's task/result/item nesting into a
// keyword→absolute-rank map, keeping only items that land on the target
// domain. Keywords without a matching item are omitted; callers treat
// omission as "not found".
func extractPositions(payload map[string]any, target string) map[string]any {
	positions := make(map[string]any)
	tasks, _ := payload["tasks"].([]any)
	for _, rawTask := range tasks {
		task, okTask := rawTask.(map[string]any)
		if !okTask {
			continue
		}
		results, _ := task["result"].([]any)
		for _, rawResult := range results {
			result, okResult := rawResult.(map[string]any)
			if !okResult {
				continue
			}
			keyword, _ := result["keyword"].(string)
			if keyword == "" {
				continue
			}
			items, _ := result["items"].([]any)
			for _, rawItem := range items {
				item, okItem := rawItem.(map[string]any)
				if !okItem {
					continue
				}
				itemDomain, _ := item["domain"].(string)
				if itemDomain != target {
					continue
				}
				if rank, okRank := item["rank_absolute"].(float64); okRank {
					positions[keyword] = rank
					break
				}
			}
		}
	}
	return positions
}

// keywordList extracts the keyword batch from task params.
func keywordList(params Params) []string {
	if params == nil {
		return nil
	}
	switch v := params["keywords"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
