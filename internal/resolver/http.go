package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPClient resolves sources through a companion extraction service exposing
// GET /resolve?url=<source>.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a resolver client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
	}
}

type resolveResponse struct {
	Title   string             `json:"title"`
	Streams map[Quality]string `json:"streams"`
	Error   string             `json:"error,omitempty"`
}

// Resolve asks the service for the streams of sourceURL and returns the preferred one.
func (c *HTTPClient) Resolve(ctx context.Context, sourceURL string) (Result, error) {
	endpoint := fmt.Sprintf("%s/resolve?url=%s", c.baseURL, url.QueryEscape(sourceURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode == http.StatusOK {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if body.Error != "" {
			return Result{}, fmt.Errorf("resolver returned status %d: %s", resp.StatusCode, body.Error)
		}

		return Result{}, fmt.Errorf("resolver returned status %d", resp.StatusCode)
	}

	stream, ok := SelectStream(body.Streams)
	if !ok {
		return Result{}, ErrNoStream
	}

	return Result{StreamURL: stream, Title: body.Title}, nil
}
