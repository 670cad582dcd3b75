package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// fallbackKeyEnv lists process variables consulted when no ai.apiKeys are configured.
var fallbackKeyEnv = []string{"API_KEY", "GEMINI_API_KEY"}

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Files returns the configuration files the loader reads, skipping blanks.
func (l *Loader) Files() []string {
	out := make([]string, 0, len(l.files))
	for _, path := range l.files {
		if strings.TrimSpace(path) != "" {
			out = append(out, path)
		}
	}
	return out
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.Files() {
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.logging.correlationheader":   "server.logging.correlationHeader",
			"server.ratelimit.requestsperminute": "server.rateLimit.requestsPerMinute",
			"cache.capacitybytes":                "cache.capacityBytes",
			"cache.badger.inmemory":              "cache.badger.inMemory",
			"cache.redis.tls.cafile":             "cache.redis.tls.caFile",
			"ai.apikeys":                         "ai.apiKeys",
			"ai.baseurl":                         "ai.baseURL",
			"ai.retry.maxretries":                "ai.retry.maxRetries",
			"ai.retry.initialdelay":              "ai.retry.initialDelay",
			"ai.retry.maxjitter":                 "ai.retry.maxJitter",
			"ai.speechretries":                   "ai.speechRetries",
			"ai.requestspersecond":               "ai.requestsPerSecond",
			"weather.geocodingurl":               "weather.geocodingURL",
			"weather.forecasturl":                "weather.forecastURL",
			"weather.breaker.maxfailures":        "weather.breaker.maxFailures",
			"weather.breaker.opentimeout":        "weather.breaker.openTimeout",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (VIVASAYA_SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
		if err := splitListFields(k); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if len(cfg.AI.Credentials()) == 0 {
		for _, name := range fallbackKeyEnv {
			if value := strings.TrimSpace(os.Getenv(name)); value != "" {
				cfg.AI.APIKeys = append(cfg.AI.APIKeys, value)
			}
		}
	}
	cfg.AI.APIKeys = cfg.AI.Credentials()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// listFields are env-settable paths holding comma-separated lists.
var listFields = []string{"ai.apiKeys"}

func splitListFields(k *koanf.Koanf) error {
	for _, path := range listFields {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("config: split %s: %w", path, err)
		}
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension for %s", path)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
			"rateLimit": map[string]any{
				"requestsPerMinute": cfg.Server.RateLimit.RequestsPerMinute,
			},
		},
		"cache": map[string]any{
			"backend":       cfg.Cache.Backend,
			"namespace":     cfg.Cache.Namespace,
			"capacityBytes": cfg.Cache.CapacityBytes,
			"badger": map[string]any{
				"path":     cfg.Cache.Badger.Path,
				"inMemory": cfg.Cache.Badger.InMemory,
			},
			"redis": map[string]any{
				"address":  cfg.Cache.Redis.Address,
				"username": cfg.Cache.Redis.Username,
				"password": cfg.Cache.Redis.Password,
				"db":       cfg.Cache.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Redis.TLS.Enabled,
					"caFile":  cfg.Cache.Redis.TLS.CAFile,
				},
			},
		},
		"ai": map[string]any{
			"apiKeys": cfg.AI.APIKeys,
			"baseURL": cfg.AI.BaseURL,
			"models": map[string]any{
				"recommendations": cfg.AI.Models.Recommendations,
				"market":          cfg.AI.Models.Market,
				"advice":          cfg.AI.Models.Advice,
				"soil":            cfg.AI.Models.Soil,
				"weather":         cfg.AI.Models.Weather,
				"image":           cfg.AI.Models.Image,
				"speech":          cfg.AI.Models.Speech,
			},
			"retry": map[string]any{
				"maxRetries":   cfg.AI.Retry.MaxRetries,
				"initialDelay": cfg.AI.Retry.InitialDelay,
				"maxJitter":    cfg.AI.Retry.MaxJitter,
			},
			"speechRetries":     cfg.AI.SpeechRetries,
			"voice":             cfg.AI.Voice,
			"requestsPerSecond": cfg.AI.RequestsPerSecond,
			"burst":             cfg.AI.Burst,
		},
		"weather": map[string]any{
			"geocodingURL": cfg.Weather.GeocodingURL,
			"forecastURL":  cfg.Weather.ForecastURL,
			"timeout":      cfg.Weather.Timeout,
			"breaker": map[string]any{
				"maxFailures": cfg.Weather.Breaker.MaxFailures,
				"openTimeout": cfg.Weather.Breaker.OpenTimeout,
			},
		},
		"ttl": map[string]any{
			"soil":            cfg.TTL.Soil,
			"advice":          cfg.TTL.Advice,
			"recommendations": cfg.TTL.Recommendations,
			"market":          cfg.TTL.Market,
			"image":           cfg.TTL.Image,
			"weather":         cfg.TTL.Weather,
		},
	}
}
