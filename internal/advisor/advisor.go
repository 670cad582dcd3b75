// Package advisor holds the domain request orchestrators. Each one derives a
// cache key, reads through the durable cache, collapses concurrent misses into
// one flight and retries the remote call under the shared credential pool.
package advisor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/cache"
	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/dedupe"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/metrics"
	"github.com/keerthanasaravanan18/college/internal/prompts"
	"github.com/keerthanasaravanan18/college/internal/retry"
	"github.com/keerthanasaravanan18/college/internal/rules"
)

// WeatherSource reads live conditions for a location.
type WeatherSource interface {
	Fetch(ctx context.Context, location string) (agri.WeatherData, error)
}

// TTLPolicy is the cache lifetime per domain.
type TTLPolicy struct {
	Soil            time.Duration
	Advice          time.Duration
	Recommendations time.Duration
	Market          time.Duration
	Image           time.Duration
	Weather         time.Duration
}

// DefaultTTLPolicy returns the built-in lifetimes.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Soil:            48 * time.Hour,
		Advice:          2 * time.Hour,
		Recommendations: 24 * time.Hour,
		Market:          4 * time.Hour,
		Image:           30 * 24 * time.Hour,
		Weather:         30 * time.Minute,
	}
}

// TTLPolicyFromConfig overlays configured durations on the defaults.
func TTLPolicyFromConfig(cfg config.TTLConfig) TTLPolicy {
	def := DefaultTTLPolicy()
	return TTLPolicy{
		Soil:            config.ParseDuration(cfg.Soil, def.Soil),
		Advice:          config.ParseDuration(cfg.Advice, def.Advice),
		Recommendations: config.ParseDuration(cfg.Recommendations, def.Recommendations),
		Market:          config.ParseDuration(cfg.Market, def.Market),
		Image:           config.ParseDuration(cfg.Image, def.Image),
		Weather:         config.ParseDuration(cfg.Weather, def.Weather),
	}
}

type Options struct {
	Cache     *cache.Store
	Flights   *dedupe.Group
	Retry     *retry.Controller
	Generator gemini.Generator
	Weather   WeatherSource
	Rules     *rules.Table
	Prompts   *prompts.Renderer
	AI        config.AIConfig
	TTL       TTLPolicy
	Metrics   *metrics.Recorder
	// Now and Rand default to the wall clock and math/rand/v2.
	Now  func() time.Time
	Rand func() float64
}

// Advisor runs the orchestrators against one cache, flight group and retry
// controller.
type Advisor struct {
	logger    *slog.Logger
	cache     *cache.Store
	flights   *dedupe.Group
	retrier   *retry.Controller
	generator gemini.Generator
	weather   WeatherSource
	rules     *rules.Table
	prompts   *prompts.Renderer
	models    config.ModelsConfig
	policy    retry.Policy
	speech    retry.Policy
	voice     string
	ttl       TTLPolicy
	metrics   *metrics.Recorder
	now       func() time.Time
	rand      func() float64
}

// New validates opts and builds an Advisor. Cache, Retry and Generator are
// required; the remaining collaborators get working defaults.
func New(logger *slog.Logger, opts Options) (*Advisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cache == nil {
		return nil, errors.New("advisor: cache store required")
	}
	if opts.Retry == nil {
		return nil, errors.New("advisor: retry controller required")
	}
	if opts.Generator == nil {
		return nil, errors.New("advisor: generator required")
	}
	flights := opts.Flights
	if flights == nil {
		flights = dedupe.New(opts.Metrics)
	}
	renderer := opts.Prompts
	if renderer == nil {
		var err error
		if renderer, err = prompts.New(); err != nil {
			return nil, err
		}
	}
	table := opts.Rules
	if table == nil {
		var err error
		if table, err = rules.DefaultTable(); err != nil {
			return nil, err
		}
	}
	ttl := opts.TTL
	if ttl == (TTLPolicy{}) {
		ttl = DefaultTTLPolicy()
	}
	models := opts.AI.Models
	defaults := config.DefaultConfig().AI
	if models == (config.ModelsConfig{}) {
		models = defaults.Models
	}
	voice := opts.AI.Voice
	if voice == "" {
		voice = defaults.Voice
	}
	policy := retry.PolicyFromConfig(opts.AI.Retry)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.Float64
	}

	return &Advisor{
		logger:    logger.With(slog.String("agent", "advisor")),
		cache:     opts.Cache,
		flights:   flights,
		retrier:   opts.Retry,
		generator: opts.Generator,
		weather:   opts.Weather,
		rules:     table,
		prompts:   renderer,
		models:    models,
		policy:    policy,
		speech:    policy.WithRetries(opts.AI.SpeechRetries),
		voice:     voice,
		ttl:       ttl,
		metrics:   opts.Metrics,
		now:       now,
		rand:      rnd,
	}, nil
}

// Cache exposes the durable store for maintenance endpoints.
func (a *Advisor) Cache() *cache.Store {
	return a.cache
}

// flow describes one read-through orchestration.
type flow[T any] struct {
	key string
	ttl time.Duration
	// skipRead bypasses the cache lookup but still writes the result.
	skipRead bool
	policy   retry.Policy
	call     func(ctx context.Context, credential string) (T, error)
	// keep decides whether a result is worth caching. Nil keeps everything.
	keep func(T) bool
}

// run executes f: cache hit short-circuits; otherwise one flight per key runs the
// retried call and populates the cache before every waiter is released.
func run[T any](ctx context.Context, a *Advisor, f flow[T]) (T, error) {
	if !f.skipRead {
		if value, ok := cache.Lookup[T](ctx, a.cache, f.key); ok {
			return value, nil
		}
	}
	return dedupe.Do(ctx, a.flights, f.key, func() (T, error) {
		// The flight is shared, so it must not die with whichever caller started it.
		flightCtx := context.WithoutCancel(ctx)
		value, err := retry.Do(flightCtx, a.retrier, f.policy, f.call)
		if err != nil {
			return value, err
		}
		if f.keep == nil || f.keep(value) {
			a.cache.Set(flightCtx, f.key, value, f.ttl)
		}
		return value, nil
	})
}
