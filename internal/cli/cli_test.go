package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/cache"
	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/storage"
)

const testEnvPrefix = "VIVASAYA_CLI_TEST"

// execute runs a fresh command tree with no api keys visible to the loader.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-prefix", testEnvPrefix}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeBadgerConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vivasaya.yaml")
	body := "cache:\n  backend: badger\n  badger:\n    path: " + filepath.Join(dir, "cache") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func seedCache(t *testing.T, path string, keys ...string) {
	t.Helper()
	ctx := context.Background()
	cfg, err := config.NewLoader("", path).Load(ctx)
	require.NoError(t, err)
	kv, err := storage.Open(ctx, cfg.Cache)
	require.NoError(t, err)
	store := cache.New(kv, cfg.Cache.Namespace)
	for _, key := range keys {
		store.Set(ctx, key, agri.WeatherData{Temp: 31, Forecast: "Clear"}, time.Hour)
	}
	require.NoError(t, kv.Close())
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.ElementsMatch(t, []string{"serve", "cache", "recommend"}, names)

	cacheCmd, _, err := root.Find([]string{"cache", "invalidate"})
	require.NoError(t, err)
	require.Equal(t, "invalidate", cacheCmd.Name())

	flag := root.PersistentFlags().Lookup("env-prefix")
	require.NotNil(t, flag)
	require.Equal(t, DefaultEnvPrefix, flag.DefValue)
}

func TestServeRequiresCredentials(t *testing.T) {
	_, err := execute(t, "serve")
	require.ErrorIs(t, err, errNoCredentials)
}

func TestServeRejectsMissingConfigFile(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load configuration")
}

func TestCacheInvalidateAndClear(t *testing.T) {
	path := writeBadgerConfig(t)
	seedCache(t, path, "weather-v4-thanjavur", "soil-v3-Thanjavur, Tamil Nadu", "weather-v4-madurai")

	out, err := execute(t, "cache", "invalidate", "weather", "--config", path)
	require.NoError(t, err)
	require.Equal(t, "removed 2 entries\n", out)

	out, err = execute(t, "cache", "invalidate", "weather", "--config", path)
	require.NoError(t, err)
	require.Equal(t, "removed 0 entries\n", out)

	out, err = execute(t, "cache", "clear", "--config", path)
	require.NoError(t, err)
	require.Equal(t, "removed 1 entries\n", out)
}

func TestCacheInvalidateRejectsBlankPattern(t *testing.T) {
	_, err := execute(t, "cache", "invalidate", "  ")
	require.EqualError(t, err, "cli: pattern must not be blank")

	_, err = execute(t, "cache", "invalidate")
	require.Error(t, err)
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		first string
	}{
		{
			name:  "local rule table",
			args:  []string{"--local", "--soil-type", "Red", "--moisture", "20"},
			first: "Groundnut (Peanut)",
		},
		{
			name:  "falls back to rules without api keys",
			args:  []string{"--soil-type", "Black", "--moisture", "60", "--lang", "ta"},
			first: "Cotton (Bt Variety)",
		},
		{
			name:  "moisture status overrides the reading",
			args:  []string{"--local", "--soil-type", "Black", "--moisture", "20", "--moisture-status", "Moist"},
			first: "Cotton (Bt Variety)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"recommend", "--location", "Thanjavur, Tamil Nadu"}, tc.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)

			var payload struct {
				Recommendations []agri.CropRecommendation `json:"recommendations"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &payload))
			require.NotEmpty(t, payload.Recommendations)
			require.LessOrEqual(t, len(payload.Recommendations), 3)
			require.Equal(t, tc.first, payload.Recommendations[0].CropName)
		})
	}
}

func TestRecommendValidatesFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "location required", args: []string{"recommend"}, want: "location"},
		{name: "blank location", args: []string{"recommend", "--location", " "}, want: "--location must not be blank"},
		{name: "unsupported language", args: []string{"recommend", "--location", "Salem", "--lang", "fr"}, want: "--lang must be en or ta"},
		{name: "ph out of range", args: []string{"recommend", "--location", "Salem", "--ph", "15"}, want: "--ph out of range"},
		{name: "moisture out of range", args: []string{"recommend", "--location", "Salem", "--moisture", "-1"}, want: "--moisture out of range"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
