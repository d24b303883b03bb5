// Package upstream wraps the remote sandbox API behind an authenticated
// HTTP client. All payloads pass through as opaque JSON; callers that need
// structure decode what they care about.
package upstream

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	boxotel "github.com/basket/boxgate/internal/otel"
)

const maxResponseBytes = 8 << 20

// APIError is returned when the upstream responded with a non-2xx status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, body)
}

// Config holds the immutable connection settings for the upstream API.
type Config struct {
	BaseURL        string
	APIKey         string
	OrganizationID string
	Timeout        time.Duration
	Metrics        *boxotel.Metrics
}

// Client is the authenticated HTTP client for the sandbox API.
// It is safe for concurrent use; credentials never change after New.
type Client struct {
	baseURL string
	apiKey  string
	orgID   string
	metrics *boxotel.Metrics

	// http carries the per-request timeout. stream has none because
	// http.Client.Timeout covers the body read, which would kill a
	// long-lived follow stream.
	http   *http.Client
	stream *http.Client
}

// RequestOptions carries optional query params, extra headers, and a JSON
// body for a single request.
type RequestOptions struct {
	Params  url.Values
	Headers http.Header
	Body    any
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		orgID:   cfg.OrganizationID,
		metrics: cfg.Metrics,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, opts)
}

func (c *Client) Post(ctx context.Context, path string, opts *RequestOptions) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, opts)
}

func (c *Client) Patch(ctx context.Context, path string, opts *RequestOptions) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, opts)
}

func (c *Client) do(ctx context.Context, method, path string, opts *RequestOptions) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.recordDuration(ctx, method, path, start)
	if err != nil {
		c.recordError(ctx, method, path)
		return nil, fmt.Errorf("upstream request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordError(ctx, method, path)
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordError(ctx, method, path)
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(body), nil
}

// Stream opens a chunked GET and hands the raw body to the caller. The
// caller owns the body and must close it; cancelling ctx unblocks any
// pending read.
func (c *Client) Stream(ctx context.Context, path string, opts *RequestOptions) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		c.recordError(ctx, http.MethodGet, path)
		return nil, fmt.Errorf("upstream stream %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.recordError(ctx, http.MethodGet, path)
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts *RequestOptions) (*http.Request, error) {
	u := c.baseURL + path
	if opts != nil && len(opts.Params) > 0 {
		u += "?" + opts.Params.Encode()
	}

	var body io.Reader
	if opts != nil && opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode upstream request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request %s %s: %w", method, path, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.orgID != "" {
		req.Header.Set("X-Organization-ID", c.orgID)
	}
	if opts != nil {
		for k, vs := range opts.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	return req, nil
}

func (c *Client) recordDuration(ctx context.Context, method, path string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		))
}

func (c *Client) recordError(ctx context.Context, method, path string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		))
}
