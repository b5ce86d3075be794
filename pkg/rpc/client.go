package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client calls an Agent Service's RPC surface over HTTP from the Gateway
// process. Grounded on the pack's raw net/http client convention (see
// pkg/llm/httpclient.go in this module, itself grounded on hector's
// pkg/httpclient) rather than a generated grpc stub.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client pointed at an Agent Service's base URL, e.g.
// "http://localhost:9090".
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ProcessMessage calls the unary RPC.
func (c *Client) ProcessMessage(ctx context.Context, params MessageParams) (MessageResult, error) {
	req := Request{JSONRPC: "2.0", ID: 1, Method: "ProcessMessage", Params: mustMarshal(params)}
	body, err := json.Marshal(req)
	if err != nil {
		return MessageResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", strings.NewReader(string(body)))
	if err != nil {
		return MessageResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return MessageResult{}, fmt.Errorf("rpc client: ProcessMessage: %w", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MessageResult{}, fmt.Errorf("rpc client: decoding response: %w", err)
	}
	if out.Error != nil {
		return MessageResult{}, fmt.Errorf("rpc client: %s (code %d)", out.Error.Message, out.Error.Code)
	}

	resultBytes, err := json.Marshal(out.Result)
	if err != nil {
		return MessageResult{}, err
	}
	var result MessageResult
	if err := json.Unmarshal(resultBytes, &result); err != nil {
		return MessageResult{}, err
	}
	return result, nil
}

// StreamMessage calls the server-streaming RPC and delivers frames on the
// returned channel until the stream ends, the context is cancelled, or an
// error occurs (in which case the error is sent as a single error frame
// before the channel closes).
func (c *Client) StreamMessage(ctx context.Context, params MessageParams) (<-chan StreamFrame, error) {
	req := Request{JSONRPC: "2.0", ID: 1, Method: "StreamMessage", Params: mustMarshal(params)}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/stream", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc client: StreamMessage: %w", err)
	}

	out := make(chan StreamFrame)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var frame StreamFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				out <- StreamFrame{ChunkType: "error", Content: err.Error(), IsLast: true}
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
			if frame.IsLast {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamFrame{ChunkType: "error", Content: err.Error(), IsLast: true}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// HealthCheck calls the Agent Service's /health endpoint, used by the
// Gateway's readiness probe.
func (c *Client) HealthCheck(ctx context.Context) (HealthStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("rpc client: HealthCheck: %w", err)
	}
	defer resp.Body.Close()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("rpc client: decoding health response: %w", err)
	}
	return status, nil
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
