package advisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
)

// DefaultSoil is the profile served when prediction fails.
func DefaultSoil() agri.SoilData {
	return agri.SoilData{
		PH:             7.2,
		Nitrogen:       45,
		Phosphorus:     22,
		Potassium:      30,
		OrganicMatter:  2.8,
		Moisture:       55,
		SoilType:       "Black",
		MoistureStatus: "Moist",
	}
}

// Soil predicts the typical soil profile for location. Weather, when given,
// is added to the prompt but does not affect the cache key.
func (a *Advisor) Soil(ctx context.Context, location string, wx *agri.WeatherData) agri.SoilData {
	soil, err := run(ctx, a, flow[agri.SoilData]{
		key:    SoilKey(location),
		ttl:    a.ttl.Soil,
		policy: a.policy,
		call: func(ctx context.Context, credential string) (agri.SoilData, error) {
			prompt, err := a.prompts.Render(prompts.Soil, map[string]any{"Location": location, "Weather": wx})
			if err != nil {
				return agri.SoilData{}, err
			}
			resp, err := a.generator.Generate(ctx, credential, gemini.Request{
				Domain: "soil",
				Model:  a.models.Soil,
				Prompt: prompt,
				Schema: soilSchema,
			})
			if err != nil {
				return agri.SoilData{}, err
			}
			var soil agri.SoilData
			if err := extractJSON(resp.Text, &soil); err != nil {
				return agri.SoilData{}, err
			}
			if soil.SoilType == "" {
				return agri.SoilData{}, fmt.Errorf("%w: soil reply has no soilType", ErrMalformedResponse)
			}
			return soil, nil
		},
	})
	if err != nil {
		a.logger.Warn("soil prediction fell back to default",
			slog.String("location", location),
			slog.Any("error", err),
		)
		return DefaultSoil()
	}
	return soil
}
