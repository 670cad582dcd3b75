package advisor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
)

const adviceSystemInstruction = "You are a Precision Agronomist."

var defaultAdvice = map[string]string{
	"en": "Check soil moisture before each irrigation and keep field drainage clear ahead of any rain.",
	"ta": "ஒவ்வொரு பாசனத்திற்கும் முன் மண்ணின் ஈரப்பதத்தை சரிபார்த்து, மழைக்கு முன் வடிகால்களை சுத்தமாக வைத்திருங்கள்.",
}

// AdviceRequest asks for a short farming tip.
type AdviceRequest struct {
	Location string           `json:"location" validate:"required"`
	Weather  agri.WeatherData `json:"weather"`
	Language string           `json:"lang" validate:"omitempty,oneof=en ta"`
}

// Advice returns a two-sentence tip for the location and outlook. Failures fall
// back to a generic tip which is not cached.
func (a *Advisor) Advice(ctx context.Context, req AdviceRequest) string {
	key := AdviceKey(req.Location, req.Weather, req.Language)
	tip, err := run(ctx, a, flow[string]{
		key:    key,
		ttl:    a.ttl.Advice,
		policy: a.policy,
		call: func(ctx context.Context, credential string) (string, error) {
			prompt, err := a.prompts.Render(prompts.Advice, map[string]any{
				"Location": req.Location,
				"Weather":  req.Weather,
				"Language": prompts.LanguageName(req.Language),
			})
			if err != nil {
				return "", err
			}
			resp, err := a.generator.Generate(ctx, credential, gemini.Request{
				Domain:            "advice",
				Model:             a.models.Advice,
				Prompt:            prompt,
				SystemInstruction: adviceSystemInstruction,
			})
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(resp.Text), nil
		},
		keep: func(tip string) bool { return tip != "" },
	})
	if err == nil && tip != "" {
		return tip
	}
	if err != nil {
		a.logger.Warn("advice fell back to default",
			slog.String("location", req.Location),
			slog.Any("error", err),
		)
	}
	return DefaultAdvice(req.Language)
}

// DefaultAdvice is the generic tip for lang, English when lang is unknown.
func DefaultAdvice(lang string) string {
	if tip, ok := defaultAdvice[strings.ToLower(lang)]; ok {
		return tip
	}
	return defaultAdvice["en"]
}
