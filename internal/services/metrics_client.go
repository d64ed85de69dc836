package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTPMetricFetcher reads creator metrics from the analytics service.
type HTTPMetricFetcher struct {
	url    string
	client HTTPDoer
}

// NewHTTPMetricFetcher creates a new HTTPMetricFetcher. A nil client means http.DefaultClient.
func NewHTTPMetricFetcher(baseURL string, client HTTPDoer) *HTTPMetricFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPMetricFetcher{url: strings.TrimRight(baseURL, "/"), client: client}
}

// FetchMetric returns the value of metricType for the creator named by the
// event's creatorId.
func (f *HTTPMetricFetcher) FetchMetric(ctx context.Context, metricType string, event map[string]any) (any, error) {
	endpoint := f.url + "/metrics/" + url.PathEscape(metricType)
	if creator, ok := event["creatorId"]; ok && creator != nil {
		endpoint += "?" + url.Values{"creatorId": {fmt.Sprint(creator)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get metric %s: status code %d", metricType, resp.StatusCode)
	}

	var payload struct {
		Value any `json:"value"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if payload.Value == nil {
		return nil, fmt.Errorf("metric %s: response has no value", metricType)
	}
	return payload.Value, nil
}
