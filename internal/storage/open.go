package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/keerthanasaravanan18/college/internal/config"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.CacheConfig) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return NewMemory(cfg.CapacityBytes), nil
	case "badger":
		return OpenBadger(BadgerConfig{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
			Capacity: cfg.CapacityBytes,
		})
	case "redis":
		return NewValkey(ctx, ValkeyConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: ValkeyTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
			Prefix:   cfg.Namespace,
			Capacity: cfg.CapacityBytes,
		})
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", cfg.Backend)
	}
}
