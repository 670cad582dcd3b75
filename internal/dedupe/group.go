// Package dedupe collapses concurrent identical requests into a single producer call.
package dedupe

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/keerthanasaravanan18/college/internal/metrics"
)

// Group tracks in-flight producers by key. The zero value is ready to use.
type Group struct {
	flights singleflight.Group
	metrics *metrics.Recorder
}

// New returns a Group that reports shared and unshared calls to rec.
func New(rec *metrics.Recorder) *Group {
	return &Group{metrics: rec}
}

// Do runs fn once per key for all callers that arrive while it is in flight; each of
// them receives the same value or error. The key is forgotten as soon as fn returns,
// so a later call starts a fresh producer.
//
// A caller whose ctx ends stops waiting, but the producer keeps running for the
// others. Producers that must outlive their first caller should not close over a
// cancellable context.
func Do[T any](ctx context.Context, g *Group, key string, fn func() (T, error)) (T, error) {
	var zero T
	ch := g.flights.DoChan(key, func() (any, error) {
		return fn()
	})
	select {
	case res := <-ch:
		g.metrics.ObserveDedupe(metrics.DomainFromKey(key), res.Shared)
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Val == nil {
			return zero, nil
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("dedupe: key %q produced %T", key, res.Val)
		}
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
