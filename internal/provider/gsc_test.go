package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSearchConsoleExecuteAttachesPositions(t *testing.T) {
	body := `{"rows":[` +
		`{"keys":["seo tools"],"clicks":10,"position":3.4},` +
		`{"keys":["backlink checker"],"clicks":2,"position":11.6},` +
		`{"keys":[],"position":1.0},` +
		`{"keys":["ghost query"],"position":0}` +
		`]}`

	var gotPath, gotAuth string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}, nil
	})}

	driver := &SearchConsoleDriver{client: client}
	settings := Params{"access_token": "tok", "site_url": "https://example.com"}
	params := Params{"keywords": []string{"seo tools", "backlink checker", "never ranked"}}

	result, errExecute := driver.Execute(context.Background(), settings, params)
	if errExecute != nil {
		t.Fatalf("execute: %v", errExecute)
	}
	if !strings.Contains(gotPath, "/searchAnalytics/query") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}

	positions, ok := result["positions"].(map[string]any)
	if !ok {
		t.Fatalf("result must carry a positions map, got %+v", result)
	}
	if got := positions["seo tools"]; got != 3 {
		t.Fatalf("fractional positions must round to the nearest rank, got %v", got)
	}
	if got := positions["backlink checker"]; got != 12 {
		t.Fatalf("fractional positions must round to the nearest rank, got %v", got)
	}
	if _, found := positions["never ranked"]; found {
		t.Fatal("keywords without an analytics row must be omitted")
	}
	if _, found := positions["ghost query"]; found {
		t.Fatal("zero-position rows must be omitted")
	}
}

func TestSearchConsoleExecuteEmptyRows(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{}`)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}, nil
	})}

	driver := &SearchConsoleDriver{client: client}
	settings := Params{"access_token": "tok", "site_url": "https://example.com"}

	result, errExecute := driver.Execute(context.Background(), settings, Params{"keywords": []string{"a"}})
	if errExecute != nil {
		t.Fatalf("execute: %v", errExecute)
	}
	positions, ok := result["positions"].(map[string]any)
	if !ok || len(positions) != 0 {
		t.Fatalf("expected an empty positions map, got %+v", result["positions"])
	}
}
