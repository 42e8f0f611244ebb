// Package fetcher provides the production data fetcher: an HTTP client for
// the host application's read API. The engine treats it as a black box; any
// timeout or retry policy lives here, not in the engine.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPFetcher resolves fetch operations to HTTP GETs against per-operation
// endpoint paths under one base URL.
type HTTPFetcher struct {
	baseURL   string
	endpoints map[string]string // operation -> path, e.g. "products" -> "/api/products"
	client    *http.Client
}

// NewHTTPFetcher creates a fetcher for the given base URL and endpoint table.
func NewHTTPFetcher(baseURL string, endpoints map[string]string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves one piece of data. The identifier "all" addresses the
// collection endpoint itself; any other identifier is appended as a path
// segment. Params become query parameters.
//
// A 404 yields (nil, nil): the key has no data, which is not a failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, operation, identifier string, params map[string]interface{}) (json.RawMessage, error) {
	path, ok := f.endpoints[operation]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for operation %q", operation)
	}

	target := f.baseURL + path
	if identifier != "all" {
		target += "/" + url.PathEscape(identifier)
	}

	if len(params) > 0 {
		values := url.Values{}
		for key, value := range params {
			values.Set(key, fmt.Sprintf("%v", value))
		}
		target += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return json.RawMessage(body), nil
}
