// Package remote executes generations against asynchronous HTTP providers.
// The provider document supplies auth, URL templates, and the field paths
// used to pull request ids, statuses, and outputs from provider-shaped
// responses; the polling loop is an explicit state machine driven by an
// injectable clock so deadlines are testable without wall time.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"easel/internal/catalog"
	"easel/internal/config"
	"easel/internal/logging"
	"easel/internal/services"
)

// Clock abstracts wall time for the polling state machine.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client talks to one remote provider.
type Client struct {
	provider   catalog.Provider
	baseURL    string
	httpClient *http.Client
	clock      Clock
	logger     *slog.Logger

	pollInterval time.Duration
	pollDeadline time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the provider's base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithClock overrides the polling clock.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient builds a client for the provider using daemon-level defaults
// for request timeout and polling cadence; the provider document can
// override the polling values.
func NewClient(provider catalog.Provider, cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}

	requestTimeout := time.Duration(cfg.Remote.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	interval := time.Duration(cfg.Remote.PollIntervalSeconds) * time.Second
	if provider.Async.PollIntervalSeconds > 0 {
		interval = time.Duration(provider.Async.PollIntervalSeconds) * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Duration(cfg.Remote.PollDeadlineSeconds) * time.Second
	if provider.Async.PollDeadlineSeconds > 0 {
		deadline = time.Duration(provider.Async.PollDeadlineSeconds) * time.Second
	}
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}

	client := &Client{
		provider:     provider,
		baseURL:      strings.TrimRight(strings.TrimSpace(provider.BaseURL), "/"),
		httpClient:   &http.Client{Timeout: requestTimeout},
		clock:        systemClock{},
		logger:       logger.With(logging.String(logging.FieldComponent, "remote"), logging.String(logging.FieldProviderID, provider.ID)),
		pollInterval: interval,
		pollDeadline: deadline,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// buildURL resolves an endpoint template: absolute URLs pass through,
// relative ones are joined to the base URL. Template variables of the form
// {name} are substituted from vars.
func (c *Client) buildURL(template string, vars map[string]string) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", services.Wrap(services.ErrConfiguration, "remote", "url",
			"endpoint template not configured for provider "+c.provider.ID, nil)
	}
	for name, value := range vars {
		template = strings.ReplaceAll(template, "{"+name+"}", url.PathEscape(value))
	}
	if strings.HasPrefix(template, "http://") || strings.HasPrefix(template, "https://") {
		return template, nil
	}
	if c.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "remote", "url",
			"provider "+c.provider.ID+" has no base url for relative endpoint "+template, nil)
	}
	return c.baseURL + "/" + strings.TrimLeft(template, "/"), nil
}

// doJSON issues a request with provider auth and decodes a JSON response.
func (c *Client) doJSON(ctx context.Context, method, requestURL string, body any) (map[string]any, []any, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyAuth(req)

	return c.execute(req)
}

func (c *Client) applyAuth(req *http.Request) {
	header, value := c.provider.Auth.Resolve()
	if value != "" {
		req.Header.Set(header, value)
	}
	req.Header.Set("Accept", "application/json")
}

// execute runs a prepared request and decodes the JSON document, which may
// be an object or a bare array.
func (c *Client) execute(req *http.Request) (map[string]any, []any, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "remote", "request",
			fmt.Sprintf("%s %s after %s", req.Method, req.URL.Path, time.Since(start).Round(time.Millisecond)), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "remote", "request", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, services.Wrap(services.ErrTransient, "remote", "request",
			fmt.Sprintf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, tail(data)), nil)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return map[string]any{}, nil, nil
	}
	if trimmed[0] == '[' {
		var list []any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, nil, fmt.Errorf("decode response array: %w", err)
		}
		return nil, list, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	return doc, nil, nil
}

func tail(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) <= 200 {
		return text
	}
	return text[:200] + "…"
}
