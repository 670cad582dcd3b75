// Package retry wraps remote calls with exponential backoff on rate-limit errors,
// rotating the shared credential pool before every wait.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/credentials"
	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/metrics"
)

// Policy is the backoff schedule for one call.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxJitter    time.Duration
}

// DefaultPolicy retries three times starting at two seconds with up to one second of jitter.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, InitialDelay: 2 * time.Second, MaxJitter: time.Second}
}

// PolicyFromConfig resolves the configured schedule, falling back to DefaultPolicy per field.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	def := DefaultPolicy()
	return Policy{
		MaxRetries:   max(cfg.MaxRetries, 0),
		InitialDelay: config.ParseDuration(cfg.InitialDelay, def.InitialDelay),
		MaxJitter:    config.ParseDuration(cfg.MaxJitter, def.MaxJitter),
	}
}

// WithRetries returns a copy of p allowing n retries.
func (p Policy) WithRetries(n int) Policy {
	p.MaxRetries = max(n, 0)
	return p
}

// Controller runs producers under a Policy.
type Controller struct {
	pool    *credentials.Pool
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(limit time.Duration) time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder
}

type Option func(*Controller)

// WithSleep replaces the wait between attempts; tests use it to skip real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithJitter replaces the random jitter source.
func WithJitter(jitter func(limit time.Duration) time.Duration) Option {
	return func(c *Controller) {
		if jitter != nil {
			c.jitter = jitter
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.OrDiscard(logger).With(slog.String("agent", "retry"))
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Controller) {
		c.metrics = rec
	}
}

func NewController(pool *credentials.Pool, opts ...Option) *Controller {
	if pool == nil {
		pool = credentials.NewPool(nil, nil, nil)
	}
	c := &Controller{
		pool:   pool,
		sleep:  sleepContext,
		jitter: randomJitter,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool exposes the credential pool the controller rotates.
func (c *Controller) Pool() *credentials.Pool {
	return c.pool
}

// Do invokes fn with the active credential. Rate-limit failures rotate the pool and
// wait delay+jitter before the next attempt, doubling delay each time, until
// MaxRetries is spent. Every other error is returned after a single attempt.
func Do[T any](ctx context.Context, c *Controller, policy Policy, fn func(ctx context.Context, credential string) (T, error)) (T, error) {
	var zero T
	delay := policy.InitialDelay
	for retries := policy.MaxRetries; ; retries-- {
		value, err := fn(ctx, c.pool.Current())
		if err == nil {
			c.metrics.ObserveRetryAttempt(metrics.RetrySuccess)
			return value, nil
		}
		if !IsRateLimit(err) {
			c.metrics.ObserveRetryAttempt(metrics.RetryFailed)
			return zero, err
		}
		if retries <= 0 {
			c.metrics.ObserveRetryAttempt(metrics.RetryExhausted)
			return zero, err
		}
		c.metrics.ObserveRetryAttempt(metrics.RetryRateLimited)

		c.pool.Rotate()
		wait := delay + c.jitter(policy.MaxJitter)
		c.logger.Warn("rate limited, backing off",
			slog.Duration("wait", wait),
			slog.Int("retries_left", retries-1),
			slog.Any("error", err),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return zero, err
		}
		delay *= 2
	}
}

// IsRateLimit reports whether err signals a rate limit or exhausted quota: HTTP 429,
// a RESOURCE_EXHAUSTED status, or error text mentioning a quota.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED")) {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && (apiErrPtr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErrPtr.Status, "RESOURCE_EXHAUSTED")) {
		return true
	}
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) && coded.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
