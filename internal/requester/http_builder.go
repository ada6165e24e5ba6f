package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brizzai/tutor-auth/internal/config"
)

// HTTPRequestBuilder turns an endpoint and RequestOptions into an *http.Request
type HTTPRequestBuilder struct {
	baseURL string
}

// NewHTTPRequestBuilder creates a new HTTPRequestBuilder
func NewHTTPRequestBuilder(cfg *config.Config) *HTTPRequestBuilder {
	return &HTTPRequestBuilder{baseURL: strings.TrimRight(cfg.API.BaseURL, "/")}
}

// BuildRequest builds a fresh request; it is called again for a retry so the body is never reused
func (b *HTTPRequestBuilder) BuildRequest(ctx context.Context, endpoint string, opts RequestOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := b.buildURL(endpoint, opts.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if opts.Body != nil {
		jsonData, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func (b *HTTPRequestBuilder) buildURL(endpoint string, query url.Values) (string, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		raw = b.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
