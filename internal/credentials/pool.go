// Package credentials holds the process-wide rotating set of API keys.
package credentials

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/metrics"
)

// Pool is an ordered, deduplicated list of credentials with a round-robin cursor.
// Rotation is global: every caller observes the credential the last rotation chose.
type Pool struct {
	mu     sync.RWMutex
	keys   []string
	cursor int

	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewPool builds a pool from keys. Blank entries and duplicates are dropped and the
// first remaining key becomes active.
func NewPool(keys []string, logger *slog.Logger, rec *metrics.Recorder) *Pool {
	return &Pool{
		keys:    normalize(keys),
		logger:  logging.OrDiscard(logger).With(slog.String("agent", "credentials")),
		metrics: rec,
	}
}

// Current returns the active credential, or "" when the pool is empty.
func (p *Pool) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.cursor]
}

// Index returns the cursor position.
func (p *Pool) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

// Len reports how many credentials the pool holds.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

// Rotate advances to the next credential, wrapping around. Pools with fewer than two
// credentials are left unchanged and Rotate reports false.
func (p *Pool) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) <= 1 {
		return false
	}
	p.cursor = (p.cursor + 1) % len(p.keys)
	p.logger.Warn("rotated api credential", slog.Int("index", p.cursor), slog.Int("pool_size", len(p.keys)))
	p.metrics.ObserveCredentialRotation()
	return true
}

// Replace swaps the pool contents. The cursor is reset to the primary key only when
// the list actually changed.
func (p *Pool) Replace(keys []string) {
	next := normalize(keys)
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Equal(p.keys, next) {
		return
	}
	p.keys = next
	p.cursor = 0
	p.logger.Info("credential pool reloaded", slog.Int("pool_size", len(next)))
}

func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
