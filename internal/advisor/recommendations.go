package advisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
)

// RecommendationRequest carries the inputs of one recommendation.
type RecommendationRequest struct {
	Location string           `json:"location" validate:"required"`
	Soil     agri.SoilData    `json:"soil"`
	Weather  agri.WeatherData `json:"weather"`
	History  string           `json:"history"`
	Language string           `json:"lang" validate:"omitempty,oneof=en ta"`
}

// Recommendations returns the model's top crops for req. A failed call yields an
// empty list; only non-empty results are cached.
func (a *Advisor) Recommendations(ctx context.Context, req RecommendationRequest) []agri.CropRecommendation {
	key := RecommendationsKey(req)
	recs, err := run(ctx, a, flow[[]agri.CropRecommendation]{
		key:    key,
		ttl:    a.ttl.Recommendations,
		policy: a.policy,
		call: func(ctx context.Context, credential string) ([]agri.CropRecommendation, error) {
			return a.generateRecommendations(ctx, credential, req)
		},
		keep: func(recs []agri.CropRecommendation) bool { return len(recs) > 0 },
	})
	if err != nil {
		a.logger.Error("recommendation generation failed",
			slog.String("location", req.Location),
			slog.String("cache_key", key),
			slog.Any("error", err),
		)
		return []agri.CropRecommendation{}
	}
	if recs == nil {
		recs = []agri.CropRecommendation{}
	}
	return recs
}

func (a *Advisor) generateRecommendations(ctx context.Context, credential string, req RecommendationRequest) ([]agri.CropRecommendation, error) {
	prompt, err := a.prompts.Render(prompts.Recommendations, req)
	if err != nil {
		return nil, err
	}
	system, err := a.prompts.Render(prompts.RecommendationsSystem, map[string]string{"Language": prompts.LanguageName(req.Language)})
	if err != nil {
		return nil, err
	}
	resp, err := a.generator.Generate(ctx, credential, gemini.Request{
		Domain:            "recommendations",
		Model:             a.models.Recommendations,
		Prompt:            prompt,
		SystemInstruction: system,
		Schema:            recommendationsSchema,
	})
	if err != nil {
		return nil, err
	}
	var recs []agri.CropRecommendation
	if err := extractJSON(resp.Text, &recs); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if rec.CropName == "" {
			return nil, fmt.Errorf("%w: recommendation %d has no cropName", ErrMalformedResponse, i)
		}
	}
	return recs, nil
}

// LocalRecommendations evaluates the offline rule table; it never calls the model.
func (a *Advisor) LocalRecommendations(req RecommendationRequest) ([]agri.CropRecommendation, error) {
	return a.rules.Recommend(req.Soil, req.Weather, req.Location, req.History)
}
