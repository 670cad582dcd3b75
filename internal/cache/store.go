// Package cache implements the durable TTL cache that fronts every remote call.
//
// Entries live in a storage.KV under a fixed namespace prefix and are encoded as
// {"data":...,"expiry":<epoch ms>,"timestamp":<epoch ms>}. Reads expire lazily and
// self-heal corrupt entries; writes that hit the medium's capacity evict expired
// entries first and then the oldest ones until the new entry fits.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/metrics"
	"github.com/keerthanasaravanan18/college/internal/storage"
)

// DefaultNamespace is the prefix shared by every persisted key.
const DefaultNamespace = "vivasaya_cache_"

var errMissingFields = errors.New("cache: entry missing data or expiry")

// Entry is the persisted envelope around a cached value.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Expiry    int64           `json:"expiry"`
	Timestamp int64           `json:"timestamp"`
}

// Store is the durable cache. Its methods never fail for expected conditions:
// expiry, corruption and capacity pressure all degrade into misses or dropped writes.
type Store struct {
	kv        storage.KV
	namespace string
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Recorder

	// evictions serializes pressure recovery so two writers never evict in parallel.
	evictions sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry and creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrDiscard(logger).With(slog.String("agent", "cache"))
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Store) {
		s.metrics = rec
	}
}

// New wraps kv. An empty namespace falls back to DefaultNamespace.
func New(kv storage.KV, namespace string, opts ...Option) *Store {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	s := &Store{
		kv:        kv,
		namespace: namespace,
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the prefix joined to every key.
func (s *Store) Namespace() string {
	return s.namespace
}

// Get decodes the live entry for key into dst and reports whether it was found.
// Expired and undecodable entries are deleted and reported as absent.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	start := time.Now()
	domain := metrics.DomainFromKey(key)
	storageKey := s.namespace + key

	raw, ok, err := s.kv.Get(ctx, storageKey)
	if err != nil {
		s.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		s.metrics.ObserveCacheLookup(domain, metrics.CacheLookupMiss, time.Since(start))
		return false
	}
	if !ok {
		s.metrics.ObserveCacheLookup(domain, metrics.CacheLookupMiss, time.Since(start))
		return false
	}

	entry, err := decodeEntry(raw)
	if err == nil && s.now().UnixMilli() > entry.Expiry {
		s.remove(ctx, storageKey)
		s.metrics.ObserveCacheLookup(domain, metrics.CacheLookupExpired, time.Since(start))
		return false
	}
	if err == nil {
		err = json.Unmarshal(entry.Data, dst)
	}
	if err != nil {
		s.logger.Warn("cache entry corrupt, removing", slog.String("key", key), slog.Any("error", err))
		s.remove(ctx, storageKey)
		s.metrics.ObserveCacheLookup(domain, metrics.CacheLookupCorrupt, time.Since(start))
		return false
	}
	s.metrics.ObserveCacheLookup(domain, metrics.CacheLookupHit, time.Since(start))
	return true
}

// Lookup is the typed form of Store.Get.
func Lookup[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var value T
	if !s.Get(ctx, key, &value) {
		var zero T
		return zero, false
	}
	return value, true
}

// Set stores value under key for ttl, replacing any previous entry. It never returns
// an error: a write that cannot be made to fit is logged and dropped.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	start := time.Now()
	domain := metrics.DomainFromKey(key)
	if ttl <= 0 {
		s.logger.Debug("cache write skipped for non-positive ttl", slog.String("key", key))
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache value not serializable", slog.String("key", key), slog.Any("error", err))
		s.metrics.ObserveCacheStore(domain, metrics.CacheStoreDropped, time.Since(start))
		return
	}
	now := s.now()
	payload, err := json.Marshal(Entry{
		Data:      data,
		Expiry:    now.Add(ttl).UnixMilli(),
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		s.metrics.ObserveCacheStore(domain, metrics.CacheStoreDropped, time.Since(start))
		return
	}

	storageKey := s.namespace + key
	err = s.kv.Set(ctx, storageKey, string(payload))
	if err == nil {
		s.metrics.ObserveCacheStore(domain, metrics.CacheStoreStored, time.Since(start))
		return
	}

	s.logger.Warn("cache write failed, pruning", slog.String("key", key), slog.Any("error", err))
	if s.prune(ctx, storageKey, string(payload)) {
		s.metrics.ObserveCacheStore(domain, metrics.CacheStoreEvicted, time.Since(start))
		return
	}
	s.logger.Warn("cache write dropped after pruning", slog.String("key", key))
	s.metrics.ObserveCacheStore(domain, metrics.CacheStoreDropped, time.Since(start))
}

type candidate struct {
	key       string
	timestamp int64
}

// prune garbage-collects expired or unreadable namespaced entries, retries the write,
// then deletes surviving entries oldest first, retrying after each deletion.
func (s *Store) prune(ctx context.Context, storageKey, payload string) bool {
	s.evictions.Lock()
	defer s.evictions.Unlock()

	keys, err := s.namespacedKeys(ctx)
	if err != nil {
		s.logger.Warn("cache prune could not list keys", slog.Any("error", err))
		return false
	}

	now := s.now().UnixMilli()
	survivors := make([]candidate, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.kv.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		entry, err := decodeEntry(raw)
		if err != nil || now > entry.Expiry {
			s.remove(ctx, key)
			s.metrics.ObserveEviction("expired")
			continue
		}
		survivors = append(survivors, candidate{key: key, timestamp: entry.Timestamp})
	}

	if s.kv.Set(ctx, storageKey, payload) == nil {
		return true
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].timestamp == survivors[j].timestamp {
			return survivors[i].key < survivors[j].key
		}
		return survivors[i].timestamp < survivors[j].timestamp
	})
	for _, victim := range survivors {
		s.remove(ctx, victim.key)
		s.metrics.ObserveEviction("oldest")
		s.logger.Debug("cache evicted entry", slog.String("key", strings.TrimPrefix(victim.key, s.namespace)))
		if s.kv.Set(ctx, storageKey, payload) == nil {
			return true
		}
	}
	return false
}

// ClearAll deletes every entry under the namespace and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	return s.deleteMatching(ctx, func(string) bool { return true })
}

// InvalidateByPattern deletes every entry whose key contains pattern.
func (s *Store) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	return s.deleteMatching(ctx, func(key string) bool {
		return strings.Contains(key, pattern)
	})
}

func (s *Store) deleteMatching(ctx context.Context, match func(key string) bool) (int, error) {
	keys, err := s.namespacedKeys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if !match(strings.TrimPrefix(key, s.namespace)) {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("cache entries invalidated", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *Store) namespacedKeys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, s.namespace) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (s *Store) remove(ctx context.Context, storageKey string) {
	if err := s.kv.Delete(ctx, storageKey); err != nil {
		s.logger.Warn("cache delete failed", slog.String("key", storageKey), slog.Any("error", err))
	}
}

func decodeEntry(raw string) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, err
	}
	if entry.Expiry == 0 || len(entry.Data) == 0 {
		return Entry{}, errMissingFields
	}
	return entry, nil
}
