// Package gateway provides the typed JSON client for the console REST backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/types"
	"go.uber.org/zap"
)

// DefaultIdentityHeader carries the caller identity when no header is configured.
const DefaultIdentityHeader = "X-User-Id"

// Requester is the surface the stores depend on. *Client satisfies it.
type Requester interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// RawBody receives a response body without envelope normalization. Pass a
// *RawBody as out when the payload's own top-level fields matter.
type RawBody []byte

// Client handles communication with the backend.
type Client struct {
	baseURL        string
	token          string
	userID         string
	identityHeader string
	httpClient     *http.Client
	logger         *zap.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL        string        // e.g., "http://localhost:3000/api"
	Token          string        // bearer token, optional
	UserID         string        // caller identity, optional
	IdentityHeader string        // defaults to X-User-Id
	Timeout        time.Duration // request timeout
	Logger         *zap.Logger
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:3000/api",
		IdentityHeader: DefaultIdentityHeader,
		Timeout:        30 * time.Second,
	}
}

// New creates a new gateway client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.IdentityHeader == "" {
		cfg.IdentityHeader = DefaultIdentityHeader
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		userID:         cfg.UserID,
		identityHeader: cfg.IdentityHeader,
		logger:         cfg.Logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Get issues a GET and decodes the normalized envelope into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil, out)
}

// Post issues a POST with a JSON body and decodes the normalized envelope into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, reader, out)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		httpReq.Header.Set(c.identityHeader, c.userID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Error(err))
		return &types.NetworkError{Op: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.NetworkError{Op: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.ServerError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Body:       data,
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if raw, ok := out.(*RawBody); ok {
		*raw = append((*raw)[:0], bytes.TrimSpace(data)...)
		return nil
	}

	payload, err := Unwrap(data)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Ping checks if the backend health endpoint answers with 2xx.
func (c *Client) Ping(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodGet, c.baseURL+path, nil, nil)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		var s string
		if json.Unmarshal(parsed.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
