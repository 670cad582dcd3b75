package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keerthanasaravanan18/college/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// slotKV admits at most limit keys, mimicking a medium that is full by entry count.
type slotKV struct {
	*storage.Memory
	limit int
}

func (s *slotKV) Set(ctx context.Context, key, value string) error {
	if _, ok, _ := s.Memory.Get(ctx, key); !ok {
		keys, _ := s.Memory.Keys(ctx)
		if len(keys) >= s.limit {
			return storage.ErrQuotaExceeded
		}
	}
	return s.Memory.Set(ctx, key, value)
}

type soilReading struct {
	SoilType string  `json:"soilType"`
	PH       float64 `json:"ph"`
	Moisture int     `json:"moisture"`
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(storage.NewMemory(0), "")

	soil := soilReading{SoilType: "Black", PH: 7.2, Moisture: 55}
	store.Set(ctx, "soil-v3-thanjavur", soil, time.Hour)
	got, ok := Lookup[soilReading](ctx, store, "soil-v3-thanjavur")
	require.True(t, ok)
	require.Equal(t, soil, got)

	store.Set(ctx, "advice-v4-x", "Irrigate at dawn.", time.Hour)
	text, ok := Lookup[string](ctx, store, "advice-v4-x")
	require.True(t, ok)
	require.Equal(t, "Irrigate at dawn.", text)

	list := []map[string]any{{"cropName": "Paddy", "confidence": float64(92)}}
	store.Set(ctx, "recs-v6-x", list, time.Hour)
	gotList, ok := Lookup[[]map[string]any](ctx, store, "recs-v6-x")
	require.True(t, ok)
	require.Equal(t, list, gotList)

	store.Set(ctx, "recs-v6-x", []map[string]any{}, time.Hour)
	gotList, ok = Lookup[[]map[string]any](ctx, store, "recs-v6-x")
	require.True(t, ok)
	require.Empty(t, gotList)
}

func TestStorePersistsEnvelope(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	kv := storage.NewMemory(0)
	store := New(kv, "", WithClock(clock.Now))

	store.Set(ctx, "weather-v4-madurai", map[string]int{"temp": 31}, 30*time.Minute)

	raw, ok, err := kv.Get(ctx, DefaultNamespace+"weather-v4-madurai")
	require.NoError(t, err)
	require.True(t, ok)
	entry, err := decodeEntry(raw)
	require.NoError(t, err)
	require.JSONEq(t, `{"temp":31}`, string(entry.Data))
	require.Equal(t, clock.Now().UnixMilli(), entry.Timestamp)
	require.Equal(t, clock.Now().Add(30*time.Minute).UnixMilli(), entry.Expiry)
	require.Greater(t, entry.Expiry, entry.Timestamp)
}

func TestStoreExpiryRemovesEntry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	kv := storage.NewMemory(0)
	store := New(kv, "", WithClock(clock.Now))

	store.Set(ctx, "weather-v4-salem", "sunny", time.Minute)
	clock.Advance(time.Minute)
	_, ok := Lookup[string](ctx, store, "weather-v4-salem")
	require.True(t, ok, "entry is live until its expiry instant has passed")

	clock.Advance(time.Millisecond)
	_, ok = Lookup[string](ctx, store, "weather-v4-salem")
	require.False(t, ok)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStoreRemovesCorruptEntries(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{{garbage"},
		{name: "missing expiry", raw: `{"data":"x","timestamp":1}`},
		{name: "missing data", raw: `{"expiry":99999999999999,"timestamp":1}`},
		{name: "wrong payload type", raw: `{"data":{"nested":true},"expiry":99999999999999,"timestamp":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := storage.NewMemory(0)
			store := New(kv, "")
			require.NoError(t, kv.Set(ctx, DefaultNamespace+"soil-v3-x", tt.raw))

			_, ok := Lookup[string](ctx, store, "soil-v3-x")
			require.False(t, ok)
			_, present, err := kv.Get(ctx, DefaultNamespace+"soil-v3-x")
			require.NoError(t, err)
			require.False(t, present)
		})
	}
}

func TestStoreSkipsNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory(0)
	store := New(kv, "")
	store.Set(ctx, "img-v2-paddy", "data:image/png;base64,AA", 0)
	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStoreEvictsExpiredBeforeLiveEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	kv := &slotKV{Memory: storage.NewMemory(0), limit: 4}
	store := New(kv, "", WithClock(clock.Now))

	store.Set(ctx, "stale", "old", time.Second)
	clock.Advance(time.Second)
	store.Set(ctx, "first", 1, time.Hour)
	clock.Advance(time.Second)
	store.Set(ctx, "second", 2, time.Hour)
	clock.Advance(time.Second)
	store.Set(ctx, "third", 3, time.Hour)

	store.Set(ctx, "fourth", 4, time.Hour)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		DefaultNamespace + "first",
		DefaultNamespace + "second",
		DefaultNamespace + "third",
		DefaultNamespace + "fourth",
	}, keys)

	clock.Advance(time.Second)
	store.Set(ctx, "fifth", 5, time.Hour)

	_, ok := Lookup[int](ctx, store, "first")
	require.False(t, ok, "oldest live entry evicted once nothing had expired")
	for _, key := range []string{"second", "third", "fourth", "fifth"} {
		_, ok := Lookup[int](ctx, store, key)
		require.True(t, ok, key)
	}
}

func TestStoreEvictsOldestUntilWriteFits(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	probe := storage.NewMemory(0)
	probeStore := New(probe, "", WithClock(clock.Now))
	probeStore.Set(ctx, "a", "x", time.Hour)
	perEntry := probe.Used()

	// Room for exactly three entries plus one foreign key.
	kv := storage.NewMemory(3*perEntry + int64(len("foreign")))
	require.NoError(t, kv.Set(ctx, "foreign", ""))

	store := New(kv, "", WithClock(clock.Now))
	for _, key := range []string{"a", "b", "c"} {
		store.Set(ctx, key, "x", time.Hour)
		clock.Advance(time.Second)
	}

	big := make([]byte, perEntry/2+1)
	for i := range big {
		big[i] = 'y'
	}
	store.Set(ctx, "d", string(big), time.Hour)

	_, okA := Lookup[string](ctx, store, "a")
	_, okB := Lookup[string](ctx, store, "b")
	_, okC := Lookup[string](ctx, store, "c")
	got, okD := Lookup[string](ctx, store, "d")
	require.False(t, okA)
	require.False(t, okB)
	require.True(t, okC)
	require.True(t, okD)
	require.Equal(t, string(big), got)

	_, ok, err := kv.Get(ctx, "foreign")
	require.NoError(t, err)
	require.True(t, ok, "keys outside the namespace are never evicted")
}

func TestStoreGivesUpWhenNothingFits(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory(256)
	store := New(kv, "")

	store.Set(ctx, "small", "x", time.Hour)
	huge := make([]byte, 1024)
	store.Set(ctx, "huge", string(huge), time.Hour)

	_, ok := Lookup[string](ctx, store, "huge")
	require.False(t, ok)
	_, ok = Lookup[string](ctx, store, "small")
	require.False(t, ok, "every namespaced entry is tried before giving up")
}

func TestStoreInvalidateByPattern(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory(0)
	store := New(kv, "")

	store.Set(ctx, "a-weather-1", 1, time.Hour)
	store.Set(ctx, "a-soil-1", 2, time.Hour)

	removed, err := store.InvalidateByPattern(ctx, "weather")
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, ok := Lookup[int](ctx, store, "a-weather-1")
	require.False(t, ok)
	_, ok = Lookup[int](ctx, store, "a-soil-1")
	require.True(t, ok)
}

func TestStoreClearAllLeavesForeignKeys(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory(0)
	require.NoError(t, kv.Set(ctx, "theme", "dark"))
	store := New(kv, "")

	store.Set(ctx, "soil-v3-a", 1, time.Hour)
	store.Set(ctx, "soil-v3-b", 2, time.Hour)

	removed, err := store.ClearAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"theme"}, keys)
}

func TestStoreCustomNamespace(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory(0)
	store := New(kv, "test_")
	require.Equal(t, "test_", store.Namespace())

	store.Set(ctx, "k", "v", time.Hour)
	_, ok, err := kv.Get(ctx, "test_k")
	require.NoError(t, err)
	require.True(t, ok)
}
