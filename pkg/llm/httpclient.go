package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is the minimal shared transport for provider implementations,
// grounded on hector's pkg/httpclient — trimmed to what the spec's LLM
// Capability needs (no rate-limit header parsing, no retry policy: retry
// lives at the capability layer per spec §6's max_retries field, applied by
// the withRetry wrapper that New puts around each provider).
type httpClient struct {
	base    string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

func newHTTPClient(base, apiKey string, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpClient{
		base:    base,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// postJSON issues a POST with a JSON body and returns the raw response for
// the caller to either decode (blocking call) or stream (SSE body).
func (c *httpClient) postJSON(ctx context.Context, path string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm: provider returned %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}
