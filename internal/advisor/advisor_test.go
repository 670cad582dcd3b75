package advisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/cache"
	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/credentials"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/retry"
	"github.com/keerthanasaravanan18/college/internal/storage"
)

var errQuota = errors.New("429 RESOURCE_EXHAUSTED: quota exceeded")

type respondFunc func(credential string, req gemini.Request) (gemini.Response, error)

type fakeGenerator struct {
	mu       sync.Mutex
	respond  map[string]respondFunc
	calls    map[string]int
	requests []gemini.Request
	creds    []string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{respond: map[string]respondFunc{}, calls: map[string]int{}}
}

func (f *fakeGenerator) on(domain string, fn respondFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond[domain] = fn
}

func (f *fakeGenerator) text(domain, body string) {
	f.on(domain, func(string, gemini.Request) (gemini.Response, error) {
		return gemini.Response{Text: body}, nil
	})
}

func (f *fakeGenerator) Generate(_ context.Context, credential string, req gemini.Request) (gemini.Response, error) {
	f.mu.Lock()
	f.calls[req.Domain]++
	f.requests = append(f.requests, req)
	f.creds = append(f.creds, credential)
	fn := f.respond[req.Domain]
	f.mu.Unlock()
	if fn == nil {
		return gemini.Response{}, errors.New("unexpected call for " + req.Domain)
	}
	return fn(credential, req)
}

func (f *fakeGenerator) count(domain string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[domain]
}

func (f *fakeGenerator) last(domain string) gemini.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Domain == domain {
			return f.requests[i]
		}
	}
	return gemini.Request{}
}

type fakeWeather struct {
	mu    sync.Mutex
	data  agri.WeatherData
	err   error
	calls int
}

func (f *fakeWeather) Fetch(context.Context, string) (agri.WeatherData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.data, f.err
}

type harness struct {
	advisor *Advisor
	gen     *fakeGenerator
	kv      *storage.Memory
	store   *cache.Store
	pool    *credentials.Pool
	now     time.Time
	sleeps  []time.Duration
	mu      sync.Mutex
}

func newHarness(t *testing.T, keys []string, wx WeatherSource) *harness {
	t.Helper()
	h := &harness{
		gen: newFakeGenerator(),
		kv:  storage.NewMemory(0),
		now: time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	h.store = cache.New(h.kv, "", cache.WithClock(clock))
	h.pool = credentials.NewPool(keys, nil, nil)
	ctrl := retry.NewController(h.pool,
		retry.WithSleep(func(_ context.Context, d time.Duration) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
		retry.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	ai := config.DefaultConfig().AI
	adv, err := New(nil, Options{
		Cache:     h.store,
		Retry:     ctrl,
		Generator: h.gen,
		Weather:   wx,
		AI:        ai,
		Now:       clock,
		Rand:      func() float64 { return 0.5 },
	})
	require.NoError(t, err)
	h.advisor = adv
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) storedKeys(t *testing.T) []string {
	t.Helper()
	keys, err := h.kv.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)

	store := cache.New(storage.NewMemory(0), "")
	_, err = New(nil, Options{Cache: store})
	require.Error(t, err)

	_, err = New(nil, Options{Cache: store, Retry: retry.NewController(nil)})
	require.Error(t, err)
}

func TestTTLPolicyFromConfig(t *testing.T) {
	policy := TTLPolicyFromConfig(config.TTLConfig{Weather: "15m", Market: "bogus"})
	require.Equal(t, 15*time.Minute, policy.Weather)
	require.Equal(t, 4*time.Hour, policy.Market)
	require.Equal(t, 30*24*time.Hour, policy.Image)
	require.Equal(t, DefaultTTLPolicy().Soil, policy.Soil)
}
