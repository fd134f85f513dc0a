// Package client provides the Canvas REST HTTP client with bearer
// authentication, rate-limit awareness, error classification and optional retry.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/canvas-progress/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Canvas client operations.
var (
	canvasRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_requests_total",
		Help: "Total Canvas requests by endpoint and status",
	}, []string{"endpoint", "status"})

	canvasRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canvas_request_duration_seconds",
		Help:    "Canvas request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	canvasErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_errors_total",
		Help: "Total Canvas errors by class",
	}, []string{"class"})
)

// APIPrefix is appended to the platform URL to reach the REST API.
const APIPrefix = "/api/v1"

// maxErrorBody bounds how much of an error body is kept in APIError.Message.
const maxErrorBody = 2048

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents Canvas throttling (403 "Rate Limit Exceeded" or 429).
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is the Canvas REST client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	apiBase     *url.URL
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the Canvas platform URL, e.g. "https://school.instructure.com".
	BaseURL string

	// Token is the bearer access token.
	Token string

	// UserAgent identifies this tool to Canvas.
	UserAgent string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Retry controls retries; the default makes a single attempt.
	Retry RetryConfig
}

// DefaultConfig returns a configuration for the given platform and token.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:   baseURL,
		Token:     token,
		UserAgent: "canvas-progress/0.1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new Canvas client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("token is required")
	}

	base, err := url.Parse(APIBase(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "canvas-progress/0.1.0"
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "canvas-client").Logger()

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: ratelimit.NewTracker(logger),
		apiBase:     base,
		config:      cfg,
		logger:      logger,
	}, nil
}

// APIBase returns the REST prefix for a platform URL, e.g.
// "https://school.instructure.com/" -> "https://school.instructure.com/api/v1".
func APIBase(platformURL string) string {
	return strings.TrimRight(strings.TrimSpace(platformURL), "/") + APIPrefix
}

// BaseURL returns the absolute REST prefix used for every request.
func (c *Client) BaseURL() string {
	return c.apiBase.String()
}

// Get performs a GET request. path is either relative to the API base
// ("/courses/1/modules?page=2") or an absolute URL on the same host.
// query is merged into the URL's own query string.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	if len(query) > 0 {
		q := target.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

func (c *Client) resolve(path string) (*url.URL, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		if u.Host != c.apiBase.Host {
			return nil, fmt.Errorf("%w: %s", ErrForeignHost, u.Host)
		}
		return u, nil
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.apiBase.String() + path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	return u, nil
}

// Do performs an HTTP request with authentication, throttling and error
// classification. Any status >= 400 is returned as *APIError with the body closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := normalizeEndpoint(req.URL.Path)

	startTime := time.Now()
	defer func() {
		canvasRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Canvas request")

	var resp *http.Response

	err := retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			class := c.classifyError(nil, reqErr)
			canvasErrorsTotal.WithLabelValues(string(class)).Inc()
			canvasRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("Canvas request failed")
			return class, reqErr
		}

		if err := c.rateLimiter.UpdateFromHeaders(resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		canvasRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 400 {
			return "", nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		resp.Body = io.NopCloser(strings.NewReader(string(body)))

		class := c.classifyError(resp, nil)
		canvasErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Canvas request error")

		message := strings.TrimSpace(string(body))
		if message == "" {
			message = resp.Status
		}
		return class, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Endpoint:   endpoint,
			Message:    message,
		}
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// classifyError categorizes an error for observability and retry decisions.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode == http.StatusForbidden && isThrottled(resp):
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// isThrottled recognises Canvas's throttling 403: an empty bucket header or the
// "Rate Limit Exceeded" body.
func isThrottled(resp *http.Response) bool {
	if remain := resp.Header.Get(ratelimit.HeaderRemaining); remain != "" {
		if v, err := strconv.ParseFloat(remain, 64); err == nil && v <= 0 {
			return true
		}
	}
	if resp.Body == nil {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return false
	}
	resp.Body = io.NopCloser(strings.NewReader(string(body)))
	return strings.Contains(strings.ToLower(string(body)), "rate limit exceeded")
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// normalizeEndpoint replaces numeric path segments so metric labels stay bounded:
// /api/v1/courses/123/modules -> /api/v1/courses/:id/modules
func normalizeEndpoint(path string) string {
	// applied twice because adjacent numeric segments share a slash
	out := numericSegment.ReplaceAllString(path, "/:id$1")
	return numericSegment.ReplaceAllString(out, "/:id$1")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the rate limit tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
