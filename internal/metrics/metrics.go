package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records durable cache reads.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records durable cache writes.
	CacheOperationStore CacheOperation = "store"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the entry was present and unexpired.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no entry was stored under the key.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupExpired indicates the entry was found past its expiry and removed.
	CacheLookupExpired CacheLookupOutcome = "expired"
	// CacheLookupCorrupt indicates the entry could not be decoded and was removed.
	CacheLookupCorrupt CacheLookupOutcome = "corrupt"
)

// CacheStoreOutcome captures the result of a cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the first write attempt succeeded.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreEvicted indicates the write succeeded after eviction freed space.
	CacheStoreEvicted CacheStoreOutcome = "evicted"
	// CacheStoreDropped indicates the write was abandoned.
	CacheStoreDropped CacheStoreOutcome = "dropped"
)

// RetryOutcome labels one attempt made by the retry controller.
type RetryOutcome string

const (
	RetrySuccess     RetryOutcome = "success"
	RetryRateLimited RetryOutcome = "rate_limited"
	RetryFailed      RetryOutcome = "failed"
	RetryExhausted   RetryOutcome = "exhausted"
)

// Recorder publishes Prometheus metrics for advisor activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	cacheEvictions  *prometheus.CounterVec

	dedupeCalls *prometheus.CounterVec

	retryAttempts       *prometheus.CounterVec
	credentialRotations prometheus.Counter

	remoteLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vivasaya",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Durable cache operations by domain and result.",
	}, []string{"domain", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vivasaya",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for durable cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"domain", "operation", "result"})

	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vivasaya",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries removed while recovering from a full store.",
	}, []string{"reason"})

	dedupeCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vivasaya",
		Subsystem: "dedupe",
		Name:      "calls_total",
		Help:      "Deduplicated calls, split by whether the result was shared with another caller.",
	}, []string{"domain", "shared"})

	retryAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vivasaya",
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Producer attempts made by the retry controller.",
	}, []string{"outcome"})

	credentialRotations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vivasaya",
		Subsystem: "credential",
		Name:      "rotations_total",
		Help:      "Times the active API credential was rotated after a rate limit.",
	})

	remoteLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vivasaya",
		Subsystem: "remote",
		Name:      "call_duration_seconds",
		Help:      "Latency distribution for calls to the AI and weather backends.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"domain", "result"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vivasaya",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served by route and status code.",
	}, []string{"route", "status"})

	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vivasaya",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for HTTP requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route"})

	reg.MustRegister(cacheOperations, cacheLatency, cacheEvictions, dedupeCalls,
		retryAttempts, credentialRotations, remoteLatency, httpRequests, httpLatency)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:            reg,
		handler:             handler,
		cacheOperations:     cacheOperations,
		cacheLatency:        cacheLatency,
		cacheEvictions:      cacheEvictions,
		dedupeCalls:         dedupeCalls,
		retryAttempts:       retryAttempts,
		credentialRotations: credentialRotations,
		remoteLatency:       remoteLatency,
		httpRequests:        httpRequests,
		httpLatency:         httpLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(domain string, result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(normalizeLabel(domain), CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a cache store attempt.
func (r *Recorder) ObserveCacheStore(domain string, result CacheStoreOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreDropped)
	}
	r.observeCache(normalizeLabel(domain), CacheOperationStore, resultLabel, duration)
}

func (r *Recorder) observeCache(domain string, operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(domain, opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(domain, opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveEviction counts one entry removed under storage pressure. Reason is
// "expired" for the garbage-collection pass and "oldest" for age-ordered eviction.
func (r *Recorder) ObserveEviction(reason string) {
	if r == nil {
		return
	}
	r.cacheEvictions.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveDedupe records a deduplicated call.
func (r *Recorder) ObserveDedupe(domain string, shared bool) {
	if r == nil {
		return
	}
	r.dedupeCalls.WithLabelValues(normalizeLabel(domain), strconv.FormatBool(shared)).Inc()
}

// ObserveRetryAttempt records a single producer attempt.
func (r *Recorder) ObserveRetryAttempt(outcome RetryOutcome) {
	if r == nil {
		return
	}
	r.retryAttempts.WithLabelValues(normalizeLabel(string(outcome))).Inc()
}

// ObserveCredentialRotation counts a credential pool rotation.
func (r *Recorder) ObserveCredentialRotation() {
	if r == nil {
		return
	}
	r.credentialRotations.Inc()
}

// ObserveRemoteCall records latency for one upstream call.
func (r *Recorder) ObserveRemoteCall(domain string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.remoteLatency.WithLabelValues(normalizeLabel(domain), result).Observe(duration.Seconds())
}

// ObserveHTTPRequest records a served request.
func (r *Recorder) ObserveHTTPRequest(route string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	routeLabel := normalizeLabel(route)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	r.httpRequests.WithLabelValues(routeLabel, statusLabel).Inc()
	r.httpLatency.WithLabelValues(routeLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// DomainFromKey trims a cache key down to the part before its version token, so
// "live-market-v6-salem-..." is labelled "live-market".
func DomainFromKey(key string) string {
	parts := strings.Split(key, "-")
	for i, part := range parts {
		if i > 0 && isVersionToken(part) {
			return strings.Join(parts[:i], "-")
		}
	}
	return normalizeLabel(parts[0])
}

func isVersionToken(part string) bool {
	if len(part) < 2 || part[0] != 'v' {
		return false
	}
	for _, r := range part[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
