package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/keerthanasaravanan18/college/internal/advisor"
	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/metrics"
)

// Advisor is the orchestrator surface the HTTP handlers call.
type Advisor interface {
	Recommendations(ctx context.Context, req advisor.RecommendationRequest) []agri.CropRecommendation
	LocalRecommendations(req advisor.RecommendationRequest) ([]agri.CropRecommendation, error)
	Market(ctx context.Context, req advisor.MarketRequest) (agri.MarketInsight, error)
	SimulatedMarket(location string, crops []string) agri.MarketInsight
	Advice(ctx context.Context, req advisor.AdviceRequest) string
	Soil(ctx context.Context, location string, wx *agri.WeatherData) agri.SoilData
	Weather(ctx context.Context, location string) agri.WeatherData
	CropImage(ctx context.Context, crop string, force bool) (string, bool)
	Speak(ctx context.Context, req advisor.SpeechRequest) advisor.Speech
}

// CacheAdmin clears persisted entries.
type CacheAdmin interface {
	ClearAll(ctx context.Context) (int, error)
	InvalidateByPattern(ctx context.Context, pattern string) (int, error)
}

type RouterOptions struct {
	Advisor Advisor
	Cache   CacheAdmin
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// CorrelationHeader carries the request ID; X-Request-ID when empty.
	CorrelationHeader string
	// RequestsPerMinute limits each client IP under /v1. Zero disables it.
	RequestsPerMinute int
}

// NewRouter mounts the advisory API, health and metrics endpoints.
func NewRouter(opts RouterOptions) http.Handler {
	h := &handlers{
		advisor: opts.Advisor,
		cache:   opts.Cache,
		logger:  logging.OrDiscard(opts.Logger).With(slog.String("agent", "http")),
	}
	header := strings.TrimSpace(opts.CorrelationHeader)
	if header == "" {
		header = defaultCorrelationHeader
	}

	r := chi.NewRouter()
	r.Use(requestID(header))
	r.Use(chimiddleware.Recoverer)
	r.Use(observe(opts.Metrics, h.logger))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.RequestsPerMinute > 0 {
			r.Use(httprate.Limit(opts.RequestsPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				}),
			))
		}
		r.Use(chimiddleware.AllowContentType("application/json"))

		r.Post("/recommendations", h.recommendations)
		r.Post("/recommendations/local", h.localRecommendations)
		r.Post("/market", h.market)
		r.Post("/advice", h.advice)
		r.Post("/soil", h.soil)
		r.Get("/weather", h.weather)
		r.Post("/images", h.image)
		r.Post("/speech", h.speech)
		r.Delete("/cache", h.clearCache)
		r.Delete("/cache/{pattern}", h.invalidateCache)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
