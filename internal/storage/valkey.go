package storage

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      ValkeyTLSConfig
	// Prefix scopes Keys to entries this process can own. Empty lists the whole database.
	Prefix   string
	Capacity int64
}

// Valkey shares cached entries across replicas through a Redis-compatible server.
type Valkey struct {
	client valkey.Client
	prefix string
	budget *budget
	writes sync.Mutex
}

func NewValkey(ctx context.Context, cfg ValkeyConfig) (*Valkey, error) {
	if cfg.Address == "" {
		return nil, errors.New("storage: valkey address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("storage: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("storage: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("storage: valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("storage: valkey ping: %w", err)
	}

	store := &Valkey{client: client, prefix: cfg.Prefix, budget: newBudget(cfg.Capacity)}
	if cfg.Capacity > 0 {
		if err := store.seedBudget(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	return store, nil
}

func (v *Valkey) seedBudget(ctx context.Context) error {
	keys, err := v.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		value, ok, err := v.Get(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			v.budget.track(key, value)
		}
	}
	return nil
}

func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	resp := v.client.Do(ctx, v.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("storage: valkey get: %w", err)
	}
	value, err := resp.ToString()
	if err != nil {
		return "", false, fmt.Errorf("storage: valkey get string: %w", err)
	}
	return value, true, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string) error {
	v.writes.Lock()
	defer v.writes.Unlock()
	commit, ok := v.budget.reserve(key, value)
	if !ok {
		return ErrQuotaExceeded
	}
	cmd := v.client.B().Set().Key(key).Value(value).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("storage: valkey set: %w", err)
	}
	commit()
	return nil
}

func (v *Valkey) Delete(ctx context.Context, key string) error {
	v.writes.Lock()
	defer v.writes.Unlock()
	if err := v.client.Do(ctx, v.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("storage: valkey del: %w", err)
	}
	v.budget.release(key)
	return nil
}

// Keys walks the keyspace with SCAN so large databases never block the server.
func (v *Valkey) Keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		var cmd valkey.Completed
		if v.prefix != "" {
			cmd = v.client.B().Scan().Cursor(cursor).Match(v.prefix + "*").Count(200).Build()
		} else {
			cmd = v.client.B().Scan().Cursor(cursor).Count(200).Build()
		}
		entry, err := v.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("storage: valkey scan: %w", err)
		}
		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}

func isOutOfMemory(err error) bool {
	if verr, ok := valkey.IsValkeyErr(err); ok {
		return strings.HasPrefix(verr.Error(), "OOM")
	}
	return false
}
