package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keerthanasaravanan18/college/internal/advisor"
	"github.com/keerthanasaravanan18/college/internal/cache"
	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/credentials"
	"github.com/keerthanasaravanan18/college/internal/dedupe"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/metrics"
	"github.com/keerthanasaravanan18/college/internal/retry"
	"github.com/keerthanasaravanan18/college/internal/storage"
	"github.com/keerthanasaravanan18/college/internal/weather"
)

// app is the wired object graph shared by serve and recommend.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	kv      storage.KV
	store   *cache.Store
	pool    *credentials.Pool
	advisor *advisor.Advisor
}

// openStore opens the configured KV backend and wraps it in the durable cache.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, rec *metrics.Recorder) (storage.KV, *cache.Store, error) {
	kv, err := storage.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	store := cache.New(kv, cfg.Cache.Namespace,
		cache.WithLogger(logger),
		cache.WithMetrics(rec),
	)
	return kv, store, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	rec := metrics.NewRecorder(prometheus.NewRegistry())

	kv, store, err := openStore(ctx, cfg, logger, rec)
	if err != nil {
		return nil, err
	}
	logger.Info("cache backend ready",
		slog.String("backend", cfg.Cache.Backend),
		slog.String("namespace", store.Namespace()),
	)

	pool := credentials.NewPool(cfg.AI.Credentials(), logger, rec)
	controller := retry.NewController(pool,
		retry.WithLogger(logger),
		retry.WithMetrics(rec),
	)
	generator := gemini.New(cfg.AI,
		gemini.WithLogger(logger),
		gemini.WithMetrics(rec),
	)
	forecasts := weather.New(cfg.Weather,
		weather.WithLogger(logger),
		weather.WithMetrics(rec),
	)

	adv, err := advisor.New(logger, advisor.Options{
		Cache:     store,
		Flights:   dedupe.New(rec),
		Retry:     controller,
		Generator: generator,
		Weather:   forecasts,
		AI:        cfg.AI,
		TTL:       advisor.TTLPolicyFromConfig(cfg.TTL),
		Metrics:   rec,
	})
	if err != nil {
		return nil, errors.Join(err, kv.Close())
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: rec,
		kv:      kv,
		store:   store,
		pool:    pool,
		advisor: adv,
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Error("cache backend close failed", slog.Any("error", err))
	}
}
