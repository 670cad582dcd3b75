// Package weather fetches current conditions and a short outlook from the
// open-meteo geocoding and forecast APIs.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/metrics"
)

// ErrLocationNotFound is returned when neither geocoding query yields a place.
var ErrLocationNotFound = errors.New("weather: location not found")

const (
	forecastDays = 5
	// Humidity and rainfall are not part of the current_weather block.
	staticHumidity = 65
)

// Client resolves a location and reads its forecast. Calls pass through a
// circuit breaker so a failing upstream is skipped until the open timeout ends.
type Client struct {
	httpClient   *http.Client
	geocodingURL string
	forecastURL  string
	breaker      *gobreaker.CircuitBreaker[agri.WeatherData]
	logger       *slog.Logger
	metrics      *metrics.Recorder
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrDiscard(logger).With(slog.String("agent", "weather"))
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = rec }
}

// New builds a client from the weather configuration section.
func New(cfg config.WeatherConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: config.ParseDuration(cfg.Timeout, 10*time.Second)},
		geocodingURL: cfg.GeocodingURL,
		forecastURL:  cfg.ForecastURL,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[agri.WeatherData](gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Timeout:     config.ParseDuration(cfg.Breaker.OpenTimeout, time.Minute),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// An unknown place or a caller giving up says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

// City returns the part of a "City, State" location before the first comma.
func City(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(city)
}

// Fetch geocodes location (first as "<location>, India", then the bare city)
// and returns the current temperature with a five day outlook.
func (c *Client) Fetch(ctx context.Context, location string) (agri.WeatherData, error) {
	start := time.Now()
	data, err := c.breaker.Execute(func() (agri.WeatherData, error) {
		return c.fetch(ctx, location)
	})
	c.metrics.ObserveRemoteCall("weather", err, time.Since(start))
	if err != nil {
		return agri.WeatherData{}, fmt.Errorf("weather: fetch %q: %w", location, err)
	}
	return data, nil
}

// State reports the breaker state, mainly for health output.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) fetch(ctx context.Context, location string) (agri.WeatherData, error) {
	place, err := c.geocode(ctx, location+", India")
	if errors.Is(err, ErrLocationNotFound) {
		place, err = c.geocode(ctx, City(location))
	}
	if err != nil {
		return agri.WeatherData{}, err
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', -1, 64))
	params.Set("current_weather", "true")
	params.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	params.Set("timezone", "auto")

	var payload forecastResponse
	if err := c.getJSON(ctx, c.forecastURL, params, &payload); err != nil {
		return agri.WeatherData{}, err
	}
	if payload.Current == nil {
		return agri.WeatherData{}, errors.New("forecast response missing current_weather")
	}

	temp := math.Round(payload.Current.Temperature)
	return agri.WeatherData{
		Temp:          temp,
		Humidity:      staticHumidity,
		Rainfall:      0,
		Forecast:      fmt.Sprintf("%s in %s. Temp: %d°C.", Condition(payload.Current.WeatherCode), place.Name, int(temp)),
		DailyForecast: payload.Daily.outlook(forecastDays),
	}, nil
}

func (c *Client) geocode(ctx context.Context, query string) (geoResult, error) {
	params := url.Values{}
	params.Set("name", query)
	params.Set("count", "1")
	params.Set("format", "json")

	var payload geocodingResponse
	if err := c.getJSON(ctx, c.geocodingURL, params, &payload); err != nil {
		return geoResult{}, err
	}
	if len(payload.Results) == 0 {
		return geoResult{}, ErrLocationNotFound
	}
	return payload.Results[0], nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// Condition maps a WMO weather interpretation code to a short label.
func Condition(code int) string {
	switch {
	case code == 0:
		return "Sunny"
	case code >= 1 && code <= 3:
		return "Partly Cloudy"
	case code >= 45 && code <= 48:
		return "Foggy"
	case code >= 51 && code <= 67:
		return "Rainy"
	case code >= 80 && code <= 82:
		return "Heavy Rain"
	case code >= 95:
		return "Stormy"
	default:
		return "Cloudy"
	}
}

type geoResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type geocodingResponse struct {
	Results []geoResult `json:"results"`
}

type currentWeather struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weathercode"`
}

type dailySeries struct {
	Time        []string  `json:"time"`
	TempMax     []float64 `json:"temperature_2m_max"`
	TempMin     []float64 `json:"temperature_2m_min"`
	WeatherCode []int     `json:"weather_code"`
}

type forecastResponse struct {
	Current *currentWeather `json:"current_weather"`
	Daily   dailySeries     `json:"daily"`
}

func (d dailySeries) outlook(limit int) []agri.DailyForecast {
	n := min(limit, len(d.Time), len(d.TempMax), len(d.TempMin), len(d.WeatherCode))
	out := make([]agri.DailyForecast, 0, n)
	for i := 0; i < n; i++ {
		label := d.Time[i]
		if day, err := time.Parse(time.DateOnly, d.Time[i]); err == nil {
			label = day.Format("Mon")
		}
		out = append(out, agri.DailyForecast{
			Date:      label,
			TempMax:   math.Round(d.TempMax[i]),
			TempMin:   math.Round(d.TempMin[i]),
			Condition: Condition(d.WeatherCode[i]),
		})
	}
	return out
}
