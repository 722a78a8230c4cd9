package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// ClientOption configures an HTTP embedding client.
type ClientOption func(*httpClient)

type httpClient struct {
	provider string
	baseURL  string
	apiKey   string
	client   *http.Client
}

// WithBaseURL overrides the provider endpoint root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *httpClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) ClientOption {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *httpClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

func newHTTPClient(provider, baseURL string, opts []ClientOption) *httpClient {
	c := &httpClient{
		provider: provider,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post sends body as JSON to endpoint and decodes a 200 response into out.
// decodeErr extracts a provider error message from a non-200 body.
func (c *httpClient) post(ctx context.Context, endpoint string, body, out any, decodeErr func([]byte) string) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, c.provider, err)
		}
		return fmt.Errorf("%w: %s: send request: %v", ErrProviderUnavailable, c.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", ErrProviderUnavailable, c.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := decodeErr(data)
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = resp.Status
		}
		return statusError(c.provider, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrProviderUnavailable, c.provider, err)
	}
	return nil
}
