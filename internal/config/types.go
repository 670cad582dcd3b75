package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every option the advisor service reads at startup.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Cache   CacheConfig   `koanf:"cache"`
	AI      AIConfig      `koanf:"ai"`
	Weather WeatherConfig `koanf:"weather"`
	TTL     TTLConfig     `koanf:"ttl"`
}

// ServerConfig collects the HTTP lifecycle knobs.
type ServerConfig struct {
	Listen    ListenConfig    `koanf:"listen"`
	Logging   LoggingConfig   `koanf:"logging"`
	RateLimit RateLimitConfig `koanf:"rateLimit"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// RateLimitConfig bounds inbound requests per client IP. Zero disables the limiter.
type RateLimitConfig struct {
	RequestsPerMinute int `koanf:"requestsPerMinute"`
}

// CacheConfig selects the persistent key-value backend behind the durable cache.
type CacheConfig struct {
	Backend       string            `koanf:"backend"`
	Namespace     string            `koanf:"namespace"`
	CapacityBytes int64             `koanf:"capacityBytes"`
	Badger        BadgerCacheConfig `koanf:"badger"`
	Redis         RedisCacheConfig  `koanf:"redis"`
}

type BadgerCacheConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"inMemory"`
}

type RedisCacheConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// AIConfig describes the generative backend: credentials, models and the retry budget.
type AIConfig struct {
	APIKeys           []string     `koanf:"apiKeys"`
	BaseURL           string       `koanf:"baseURL"`
	Models            ModelsConfig `koanf:"models"`
	Retry             RetryConfig  `koanf:"retry"`
	SpeechRetries     int          `koanf:"speechRetries"`
	Voice             string       `koanf:"voice"`
	RequestsPerSecond float64      `koanf:"requestsPerSecond"`
	Burst             int          `koanf:"burst"`
}

// ModelsConfig maps each domain to the model identifier it calls.
type ModelsConfig struct {
	Recommendations string `koanf:"recommendations"`
	Market          string `koanf:"market"`
	Advice          string `koanf:"advice"`
	Soil            string `koanf:"soil"`
	Weather         string `koanf:"weather"`
	Image           string `koanf:"image"`
	Speech          string `koanf:"speech"`
}

// RetryConfig holds the backoff schedule for rate-limited calls. Durations use
// Go duration syntax ("2s", "500ms").
type RetryConfig struct {
	MaxRetries   int    `koanf:"maxRetries"`
	InitialDelay string `koanf:"initialDelay"`
	MaxJitter    string `koanf:"maxJitter"`
}

// WeatherConfig points at the geocoding and forecast HTTP APIs.
type WeatherConfig struct {
	GeocodingURL string               `koanf:"geocodingURL"`
	ForecastURL  string               `koanf:"forecastURL"`
	Timeout      string               `koanf:"timeout"`
	Breaker      WeatherBreakerConfig `koanf:"breaker"`
}

type WeatherBreakerConfig struct {
	MaxFailures uint32 `koanf:"maxFailures"`
	OpenTimeout string `koanf:"openTimeout"`
}

// TTLConfig overrides the per-domain cache lifetimes.
type TTLConfig struct {
	Soil            string `koanf:"soil"`
	Advice          string `koanf:"advice"`
	Recommendations string `koanf:"recommendations"`
	Market          string `koanf:"market"`
	Image           string `koanf:"image"`
	Weather         string `koanf:"weather"`
}

// Credentials returns the configured API keys trimmed, without blanks or
// duplicates, in their original order. The first key is the primary one.
func (c AIConfig) Credentials() []string {
	seen := make(map[string]struct{}, len(c.APIKeys))
	out := make([]string, 0, len(c.APIKeys))
	for _, key := range c.APIKeys {
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

// ParseDuration resolves a duration string, returning fallback when the value is
// empty. Invalid values are rejected by Validate so callers may ignore errors.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("config: server.rateLimit.requestsPerMinute invalid: %d", c.Server.RateLimit.RequestsPerMinute)
	}
	if strings.TrimSpace(c.Cache.Namespace) == "" {
		return errors.New("config: cache.namespace required")
	}
	if c.Cache.CapacityBytes < 0 {
		return fmt.Errorf("config: cache.capacityBytes invalid: %d", c.Cache.CapacityBytes)
	}
	switch strings.TrimSpace(strings.ToLower(c.Cache.Backend)) {
	case "", "memory":
	case "badger":
		if !c.Cache.Badger.InMemory && strings.TrimSpace(c.Cache.Badger.Path) == "" {
			return errors.New("config: cache.badger.path required unless inMemory is set")
		}
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.backend unsupported: %s", c.Cache.Backend)
	}
	if c.AI.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: ai.retry.maxRetries invalid: %d", c.AI.Retry.MaxRetries)
	}
	if c.AI.SpeechRetries < 0 {
		return fmt.Errorf("config: ai.speechRetries invalid: %d", c.AI.SpeechRetries)
	}
	if c.AI.RequestsPerSecond < 0 {
		return fmt.Errorf("config: ai.requestsPerSecond invalid: %v", c.AI.RequestsPerSecond)
	}
	durations := map[string]string{
		"ai.retry.initialDelay":       c.AI.Retry.InitialDelay,
		"ai.retry.maxJitter":          c.AI.Retry.MaxJitter,
		"weather.timeout":             c.Weather.Timeout,
		"weather.breaker.openTimeout": c.Weather.Breaker.OpenTimeout,
		"ttl.soil":                    c.TTL.Soil,
		"ttl.advice":                  c.TTL.Advice,
		"ttl.recommendations":         c.TTL.Recommendations,
		"ttl.market":                  c.TTL.Market,
		"ttl.image":                   c.TTL.Image,
		"ttl.weather":                 c.TTL.Weather,
	}
	for field, value := range durations {
		if strings.TrimSpace(value) == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %s invalid duration %q: %w", field, value, err)
		}
		if d < 0 {
			return fmt.Errorf("config: %s must not be negative", field)
		}
	}
	return nil
}

// DefaultConfig returns the baseline values used when no file or env override exists.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
		},
		Cache: CacheConfig{
			Backend:       "memory",
			Namespace:     "vivasaya_cache_",
			CapacityBytes: 5 << 20,
		},
		AI: AIConfig{
			Models: ModelsConfig{
				Recommendations: "gemini-3-pro-preview",
				Market:          "gemini-3-flash-preview",
				Advice:          "gemini-3-flash-preview",
				Soil:            "gemini-3-flash-preview",
				Weather:         "gemini-3-flash-preview",
				Image:           "gemini-2.5-flash-image",
				Speech:          "gemini-2.5-flash-preview-tts",
			},
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: "2s",
				MaxJitter:    "1s",
			},
			SpeechRetries: 1,
			Voice:         "Kore",
		},
		Weather: WeatherConfig{
			GeocodingURL: "https://geocoding-api.open-meteo.com/v1/search",
			ForecastURL:  "https://api.open-meteo.com/v1/forecast",
			Timeout:      "10s",
			Breaker: WeatherBreakerConfig{
				MaxFailures: 5,
				OpenTimeout: "1m",
			},
		},
		TTL: TTLConfig{
			Soil:            "48h",
			Advice:          "2h",
			Recommendations: "24h",
			Market:          "4h",
			Image:           "720h",
			Weather:         "30m",
		},
	}
}
