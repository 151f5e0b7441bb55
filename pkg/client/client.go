// Package client provides the resilient Flowdeck API client. Each call
// composes admission control, the retry engine and a single-exchange
// transport: Schedule(withRetry(execute(request))).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flowdeck/flowdeck-go/pkg/cache"
	"github.com/flowdeck/flowdeck-go/pkg/logging"
	"github.com/flowdeck/flowdeck-go/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdeck_requests_total",
		Help: "Total Flowdeck API requests by path and outcome",
	}, []string{"path", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowdeck_request_duration_seconds",
		Help:    "Flowdeck API request duration in seconds by path",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"path"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdeck_errors_total",
		Help: "Total Flowdeck API errors by kind",
	}, []string{"kind"})
)

// Config holds the client configuration. All fields are immutable for
// the lifetime of one client instance.
type Config struct {
	// BaseURL is the root of the Flowdeck REST API.
	BaseURL string

	// APIKey is the credential sent in the X-Flowdeck-Api-Key header.
	// Its value never appears in any log record.
	APIKey string

	// UserAgent identifies this client to the API.
	UserAgent string

	// Timeout is the default per-attempt deadline.
	Timeout time.Duration

	// Retry is the default retry policy, overridable per call.
	Retry RetryPolicy

	// RateLimit configures the shared admission controller.
	RateLimit ratelimit.Config

	// Redis optionally enables the GET response cache.
	Redis *redis.Client

	// CacheTTL is the validity of cached GET responses. Ignored when
	// Redis is nil.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration for the given API.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		UserAgent: "flowdeck-go/1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryPolicy(),
		RateLimit: ratelimit.DefaultConfig(),
		CacheTTL:  60 * time.Second,
	}
}

// RequestOptions customizes a single call made through Request.
type RequestOptions struct {
	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are merged over the client's default headers.
	Headers map[string]string

	// Body is JSON-encoded unless already a []byte, json.RawMessage or
	// string, which pass through as-is.
	Body any

	// Params are appended to the URL as query parameters. Empty values
	// are skipped.
	Params url.Values

	// Timeout overrides the client's default per-attempt deadline.
	Timeout time.Duration

	// Retry partially overrides the client's retry policy for this call.
	// Zero fields inherit the client defaults, so MaxRetries=0 here means
	// "inherit", not "disable retries"; set MaxRetries on the client
	// Config to turn retries off.
	Retry *RetryPolicy
}

// Client is the resilient Flowdeck API client. It is safe for concurrent
// use; the admission controller is the only state shared across calls.
type Client struct {
	transport *transport
	limiter   *ratelimit.Limiter
	cache     *cache.Manager
	retry     RetryPolicy
	timeout   time.Duration
	cacheTTL  time.Duration
	logger    zerolog.Logger
}

// New creates a client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	logger := logging.NewLogger("flowdeck-client")

	limiter, err := ratelimit.New(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}

	c := &Client{
		transport: &transport{
			http:      &http.Client{},
			baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
			apiKey:    cfg.APIKey,
			userAgent: cfg.UserAgent,
			logger:    logger,
		},
		limiter:  limiter,
		retry:    cfg.Retry,
		timeout:  cfg.Timeout,
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Request performs one logical call against the API and returns the
// decoded JSON value, or nil for empty and non-JSON bodies.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (any, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	policy := c.retry.merge(opts.Retry)

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	if method == http.MethodGet && c.cache != nil {
		if cached, ok := c.cacheLookup(ctx, path, opts.Params); ok {
			requestsTotal.WithLabelValues(path, "cache_hit").Inc()
			return cached, nil
		}
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	var result any
	schedErr := c.limiter.Schedule(ctx, func() error {
		var opErr error
		result, opErr = withRetry(ctx, c.logger, method, path, policy, func() (any, error) {
			// A fresh request value per attempt; headers and body are
			// regenerated identically.
			req := &request{
				method:  method,
				path:    path,
				params:  opts.Params,
				headers: opts.Headers,
				body:    body,
				hasBody: opts.Body != nil,
				timeout: timeout,
			}
			return c.transport.execute(ctx, req)
		})
		return opErr
	})
	if schedErr != nil {
		kind := string(KindOf(schedErr))
		requestsTotal.WithLabelValues(path, kind).Inc()
		errorsTotal.WithLabelValues(kind).Inc()
		return nil, schedErr
	}

	requestsTotal.WithLabelValues(path, "success").Inc()

	if method == http.MethodGet && c.cache != nil && result != nil {
		c.cacheStore(ctx, path, opts.Params, result)
	}

	return result, nil
}

// cacheLookup consults the response cache. Cache errors degrade to a
// direct request.
func (c *Client) cacheLookup(ctx context.Context, path string, params url.Values) (any, bool) {
	entry, err := c.cache.Get(ctx, cache.Key{Path: path, Params: params})
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("path", path).Msg("Cache lookup failed")
		}
		return nil, false
	}

	var decoded any
	if err := json.Unmarshal(entry.Data, &decoded); err != nil {
		c.logger.Warn().Str("path", path).Msg("Invalid cached payload - refetching")
		return nil, false
	}
	return decoded, true
}

// cacheStore saves a successful GET response body.
func (c *Client) cacheStore(ctx context.Context, path string, params url.Values, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	entry := cache.NewEntry(data, http.StatusOK, c.cacheTTL)
	if err := c.cache.Set(ctx, cache.Key{Path: path, Params: params}, entry); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Failed to cache response")
	}
}

// Get performs a GET request with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (any, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodGet, Params: params})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (any, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPost, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (any, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPut, Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (any, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPatch, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (any, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodDelete})
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.transport.http = hc
}
