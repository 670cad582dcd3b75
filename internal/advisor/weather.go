package advisor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/cache"
	"github.com/keerthanasaravanan18/college/internal/dedupe"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
	"github.com/keerthanasaravanan18/college/internal/retry"
)

var errNoWeatherSource = errors.New("advisor: no weather source configured")

// DefaultWeather is the last-resort reading for location.
func DefaultWeather(location string) agri.WeatherData {
	return agri.WeatherData{
		Temp:          30,
		Humidity:      60,
		Rainfall:      0,
		Forecast:      "Stable weather in " + location + ".",
		DailyForecast: []agri.DailyForecast{},
	}
}

// Weather returns live conditions for location. Only live readings are cached;
// when the weather API fails the model simulates a reading, and when that fails
// too DefaultWeather is returned.
func (a *Advisor) Weather(ctx context.Context, location string) agri.WeatherData {
	key := WeatherKey(location)
	if wx, ok := cache.Lookup[agri.WeatherData](ctx, a.cache, key); ok {
		return wx
	}
	wx, _ := dedupe.Do(ctx, a.flights, key, func() (agri.WeatherData, error) {
		flightCtx := context.WithoutCancel(ctx)
		live, err := a.liveWeather(flightCtx, location)
		if err == nil {
			a.cache.Set(flightCtx, key, live, a.ttl.Weather)
			return live, nil
		}
		a.logger.Warn("weather api failed, simulating",
			slog.String("location", location),
			slog.Any("error", err),
		)
		simulated, err := a.simulateWeather(flightCtx, location)
		if err != nil {
			a.logger.Warn("weather simulation failed, using default",
				slog.String("location", location),
				slog.Any("error", err),
			)
			return DefaultWeather(location), nil
		}
		return simulated, nil
	})
	if wx.Forecast == "" {
		// The caller gave up before the flight settled.
		return DefaultWeather(location)
	}
	return wx
}

func (a *Advisor) liveWeather(ctx context.Context, location string) (agri.WeatherData, error) {
	if a.weather == nil {
		return agri.WeatherData{}, errNoWeatherSource
	}
	return a.weather.Fetch(ctx, location)
}

func (a *Advisor) simulateWeather(ctx context.Context, location string) (agri.WeatherData, error) {
	prompt, err := a.prompts.Render(prompts.Weather, map[string]any{"Location": location})
	if err != nil {
		return agri.WeatherData{}, err
	}
	return retry.Do(ctx, a.retrier, a.policy.WithRetries(0), func(ctx context.Context, credential string) (agri.WeatherData, error) {
		resp, err := a.generator.Generate(ctx, credential, gemini.Request{
			Domain: "weather",
			Model:  a.models.Weather,
			Prompt: prompt,
			Schema: weatherSchema,
		})
		if err != nil {
			return agri.WeatherData{}, err
		}
		var wx agri.WeatherData
		if err := extractJSON(resp.Text, &wx); err != nil {
			return agri.WeatherData{}, err
		}
		if wx.Forecast == "" {
			return agri.WeatherData{}, ErrMalformedResponse
		}
		return wx, nil
	})
}
