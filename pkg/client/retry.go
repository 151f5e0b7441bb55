package client

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdeck_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowdeck_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdeck_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryPolicy holds the configuration for the retry engine.
// Immutable; one instance per client, overridable per call.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// BackoffMultiplier is the exponential growth factor. Must be > 1.
	BackoffMultiplier float64

	// JitterFactor bounds the uniform random jitter added to each delay,
	// as a fraction of the delay. Must be in [0, 1].
	JitterFactor float64
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.2,
	}
}

// Validate checks the policy for usable values.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be > 0 (got %v)", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max_delay must be >= base_delay (got %v < %v)", p.MaxDelay, p.BaseDelay)
	}
	if p.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1 (got %v)", p.BackoffMultiplier)
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return fmt.Errorf("jitter_factor must be in [0, 1] (got %v)", p.JitterFactor)
	}
	return nil
}

// merge overlays the non-zero fields of override onto p, producing the
// effective policy for one call. Zero fields inherit the client default,
// so an override cannot express MaxRetries=0; disabling retries is a
// client Config decision, not a per-call one.
func (p RetryPolicy) merge(override *RetryPolicy) RetryPolicy {
	if override == nil {
		return p
	}
	merged := p
	if override.MaxRetries > 0 {
		merged.MaxRetries = override.MaxRetries
	}
	if override.BaseDelay > 0 {
		merged.BaseDelay = override.BaseDelay
	}
	if override.MaxDelay > 0 {
		merged.MaxDelay = override.MaxDelay
	}
	if override.BackoffMultiplier > 0 {
		merged.BackoffMultiplier = override.BackoffMultiplier
	}
	if override.JitterFactor > 0 {
		merged.JitterFactor = override.JitterFactor
	}
	return merged
}

// delay returns the backoff before retry k (zero-based): the exponential
// delay capped at MaxDelay, plus uniform jitter in [0, delay*JitterFactor].
func (p RetryPolicy) delay(k int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < k; i++ {
		d *= p.BackoffMultiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	jitter := d * p.JitterFactor * rand.Float64()
	return time.Duration(d + jitter)
}

// idempotent reports whether method is safe to retry unconditionally.
// PUT and DELETE are idempotent by contract of the Flowdeck API, not by
// protocol guarantee.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// shouldRetry decides whether a failed attempt is eligible for another.
// Idempotent methods retry any retryable failure. Non-idempotent methods
// (POST, PATCH) retry only connectivity and timeout failures: a 5xx on a
// POST may already have applied its side effect, so it is never retried
// automatically. This is a deliberate policy choice, not a limitation.
func shouldRetry(method string, err error) bool {
	if !Retryable(err) {
		return false
	}
	if idempotent(method) {
		return true
	}
	return transient(err)
}

// withRetry runs fn up to policy.MaxRetries+1 times, sleeping with
// exponential backoff and jitter between attempts. The failure from the
// final attempt propagates unchanged; the retry engine is the sole
// authority on whether a classified failure is retried.
func withRetry(ctx context.Context, logger zerolog.Logger, method, path string, policy RetryPolicy, fn func() (any, error)) (any, error) {
	attempts := policy.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := policy.delay(attempt - 1)
			kind := string(KindOf(lastErr))
			retriesTotal.WithLabelValues(kind).Inc()
			retryBackoffSeconds.WithLabelValues(kind).Observe(backoff.Seconds())

			logger.Warn().
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Str("kind", kind).
				Msg("Retrying request after backoff")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Str("method", method).
					Str("path", path).
					Int("attempts", attempt+1).
					Msg("Request succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !shouldRetry(method, err) {
			logger.Error().
				Err(err).
				Str("method", method).
				Str("path", path).
				Int("attempts", attempt+1).
				Bool("retryable", Retryable(err)).
				Msg("Request failed with non-retryable error")
			return nil, err
		}
	}

	kind := string(KindOf(lastErr))
	retryExhaustedTotal.WithLabelValues(kind).Inc()
	logger.Error().
		Err(lastErr).
		Str("method", method).
		Str("path", path).
		Int("attempts", attempts).
		Str("kind", kind).
		Msg("Retry attempts exhausted")

	return nil, lastErr
}
