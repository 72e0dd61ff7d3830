package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	defaultHTTPTimeout = 10 * time.Minute
)

// Family selects the endpoint family a client serves, which decides the
// model used when none is configured.
type Family string

const (
	FamilyEmbedding     Family = "embedding"
	FamilyTranscription Family = "transcription"
)

// Config captures the runtime settings for one endpoint family.
type Config struct {
	Family         Family
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	TimeoutSeconds int
}

// Client wraps an OpenAI-compatible REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets how many times a rate-limited request is sent.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff sets the first backoff delay and its ceiling.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		c.retry.ceiling = ceiling
	}
}

// WithSleeper replaces the timer used between retries.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleep = sleep }
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.Family)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retry:      defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultModel(family Family) string {
	if family == FamilyTranscription {
		return DefaultTranscriptionModel
	}
	return DefaultEmbeddingModel
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

// StatusError reports a non-2xx API response. Message and Type come from the
// standard {"error": {...}} envelope when the body carries one.
type StatusError struct {
	StatusCode int
	Message    string
	Type       string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = snippet(e.Body)
	}
	if e.Type != "" {
		detail = e.Type + ": " + detail
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, detail)
}

func newStatusError(resp *http.Response, body []byte) *StatusError {
	se := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		se.Message = envelope.Error.Message
		se.Type = envelope.Error.Type
	}
	return se
}

// post sends the body built by newBody to path. Only 429 responses are
// retried; newBody runs once per attempt.
func (c *Client) post(ctx context.Context, op, path string, newBody func() (io.Reader, string, error)) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key required", op)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("%s: build url: %w", op, err)
	}

	attempts := max(c.retry.attempts, 1)
	for attempt := 1; ; attempt++ {
		body, contentType, err := newBody()
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		payload, err := c.send(ctx, endpoint, body, contentType)
		if err == nil {
			return payload, nil
		}

		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("%s: rate limited after %d attempts: %w", op, attempts, err)
		}
		if err := c.retry.wait(ctx, c.retry.delay(attempt, se.RetryAfter)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
}

func (c *Client) send(ctx context.Context, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, newStatusError(resp, payload)
	}
	return payload, nil
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

// retryPolicy spaces out rate-limited attempts. A server-supplied
// Retry-After wins over the exponential schedule; both are capped.
type retryPolicy struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleep    func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: 3, base: 2 * time.Second, ceiling: 30 * time.Second}
}

func (p retryPolicy) delay(attempt int, retryAfter time.Duration) time.Duration {
	d := retryAfter
	if d <= 0 && p.base > 0 {
		d = p.base << min(attempt-1, 16)
	}
	if p.ceiling > 0 {
		d = min(d, p.ceiling)
	}
	return max(d, 0)
}

func (p retryPolicy) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	if p.sleep != nil {
		p.sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Anything else,
// including dates in the past, yields zero.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return max(time.Duration(seconds)*time.Second, 0)
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}

// snippet flattens whitespace and truncates content for error messages.
func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
