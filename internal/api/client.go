// Package api provides the HTTP transport to the admin API.
//
// This package implements:
//   - A shared, pooled http.Client reused by every outbound caller
//   - Client, a JSON GET transport with base URL and bearer token handling
//   - Breaker, a circuit breaker wrapper around any Getter
//   - Flex wire types for the admin API's loosely typed JSON
//
// Every failure leaving this package is an *errors.TransportError.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cmonreports/internal/errors"
)

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 32 << 20

// Getter performs one GET against the admin API and returns the raw body.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// sharedClient is the HTTP client used for outbound calls that do not need
// their own pool (Telegram, the admin API when no client is injected).
//
// http.Client is safe for concurrent use; no additional locking is needed.
var sharedClient *http.Client

func init() {
	sharedClient = NewHTTPClient(30*time.Second, 100)
}

// GetHTTPClient returns the shared HTTP client instance.
func GetHTTPClient() *http.Client {
	return sharedClient
}

// SetHTTPClient allows overriding the shared client (useful for testing).
func SetHTTPClient(client *http.Client) {
	sharedClient = client
}

// NewHTTPClient creates a new HTTP client with connection pooling.
//
// Connection pool configuration:
//   - MaxIdleConns: maxConns, across all hosts
//   - MaxIdleConnsPerHost: 10
//   - IdleConnTimeout: 90 seconds
//   - Keep-alive and HTTP/2 enabled
//
// Parameters:
//   - timeout: Maximum time for a complete request (including reading response)
//   - maxConns: Idle connection pool size; values < 1 fall back to 100
//
// Returns:
//   - *http.Client: Configured HTTP client
func NewHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	if maxConns < 1 {
		maxConns = 100
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// Client issues authenticated JSON GET requests against the admin API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an admin API client.
//
// Parameters:
//   - baseURL: API root, e.g. https://admin.example.com/api
//   - token: Bearer token, empty to send no Authorization header
//   - httpClient: Client to use, nil for the shared client
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = GetHTTPClient()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Get requests path (relative to the base URL) with the given query and
// returns the response body.
//
// Returns:
//   - []byte: Raw response body of a 2xx response
//   - error: *errors.TransportError on network failure or non-2xx status
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.URL(path, query)
	op := "GET " + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.NewTransportError(op, target, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(op, target, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewTransportError(op, target, resp.StatusCode, fmt.Errorf("%s", snippet(body)))
	}
	if err != nil {
		return nil, errors.NewTransportError(op, target, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	return body, nil
}

// URL builds the absolute request URL for path and query.
func (c *Client) URL(path string, query url.Values) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// snippet returns the start of an error body for log context.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response"
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
