// Package storage provides the persistent key-value media behind the durable cache.
// Every backend is byte-capacity aware so quota pressure surfaces the same way a
// browser's storage would report it.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrQuotaExceeded reports that a write did not fit in the medium.
var ErrQuotaExceeded = errors.New("storage: quota exceeded")

// KV is a flat string-keyed store. Absence is reported as ok=false, never as an error.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// budget tracks the bytes held per key against an optional capacity. A capacity of
// zero or less disables the bound.
type budget struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	sizes    map[string]int64
}

func newBudget(capacity int64) *budget {
	return &budget{capacity: capacity, sizes: make(map[string]int64)}
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}

// reserve claims room for key=value, releasing whatever the key held before. The
// returned commit must be called once the write lands; a nil commit means the
// write does not fit.
func (b *budget) reserve(key, value string) (commit func(), ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := entrySize(key, value)
	next := b.used - b.sizes[key] + size
	if b.capacity > 0 && next > b.capacity {
		return nil, false
	}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.used = b.used - b.sizes[key] + size
		b.sizes[key] = size
	}, true
}

func (b *budget) track(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := entrySize(key, value)
	b.used = b.used - b.sizes[key] + size
	b.sizes[key] = size
}

func (b *budget) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= b.sizes[key]
	delete(b.sizes, key)
}

// Used reports the bytes currently accounted.
func (b *budget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
