package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name: "returns defaults when no overrides",
			setup: func(t *testing.T) []string {
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 8080, cfg.Server.Listen.Port)
				require.Equal(t, "vivasaya_cache_", cfg.Cache.Namespace)
				require.Equal(t, 3, cfg.AI.Retry.MaxRetries)
				require.Equal(t, "24h", cfg.TTL.Recommendations)
			},
		},
		{
			name: "merges yaml file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "vivasaya.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\nai:\n  apiKeys:\n    - primary\n    - backup\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9090, cfg.Server.Listen.Port)
				require.Equal(t, []string{"primary", "backup"}, cfg.AI.APIKeys)
			},
		},
		{
			name: "merges json file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "vivasaya.json")
				require.NoError(t, os.WriteFile(path, []byte(`{"cache":{"backend":"badger","badger":{"inMemory":true}}}`), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "badger", cfg.Cache.Backend)
				require.True(t, cfg.Cache.Badger.InMemory)
			},
		},
		{
			name: "merges toml file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "vivasaya.toml")
				require.NoError(t, os.WriteFile(path, []byte("[ttl]\nweather = \"15m\"\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "15m", cfg.TTL.Weather)
				require.Equal(t, 15*time.Minute, ParseDuration(cfg.TTL.Weather, time.Hour))
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "vivasaya.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\n"), 0o600))
				t.Setenv("VIVASAYA_SERVER__LISTEN__PORT", "9091")
				t.Setenv("VIVASAYA_AI__RETRY__INITIALDELAY", "500ms")
				t.Setenv("VIVASAYA_AI__APIKEYS", "env-a,env-b")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9091, cfg.Server.Listen.Port)
				require.Equal(t, "500ms", cfg.AI.Retry.InitialDelay)
				require.Equal(t, []string{"env-a", "env-b"}, cfg.AI.APIKeys)
			},
		},
		{
			name: "deduplicates credentials",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "vivasaya.yaml")
				require.NoError(t, os.WriteFile(path, []byte("ai:\n  apiKeys: [\"a\", \" a \", \"\", \"b\"]\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, []string{"a", "b"}, cfg.AI.APIKeys)
			},
		},
		{
			name: "falls back to API_KEY when no keys configured",
			setup: func(t *testing.T) []string {
				t.Setenv("API_KEY", "from-env")
				t.Setenv("GEMINI_API_KEY", "")
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, []string{"from-env"}, cfg.AI.APIKeys)
			},
		},
		{
			name: "fails when file missing",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				return []string{filepath.Join(dir, "missing.yaml")}
			},
			wantErr: true,
		},
		{
			name: "fails on unsupported extension",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "vivasaya.ini")
				require.NoError(t, os.WriteFile(path, []byte("port=1"), 0o600))
				return []string{path}
			},
			wantErr: true,
		},
		{
			name: "fails validation for unknown backend",
			setup: func(t *testing.T) []string {
				t.Setenv("VIVASAYA_CACHE__BACKEND", "memcached")
				return nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := tt.setup(t)
			loader := NewLoader("VIVASAYA", files...)
			cfg, err := loader.Load(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestLoaderHonorsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vivasaya.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {}\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader("VIVASAYA", path).Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
