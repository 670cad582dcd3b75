package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
)

const maxMarketSources = 3

// MarketRequest asks for live mandi prices of crops around location.
type MarketRequest struct {
	Location string   `json:"location" validate:"required"`
	Crops    []string `json:"crops" validate:"required,min=1,dive,required"`
	Language string   `json:"lang" validate:"omitempty,oneof=en ta"`
	// Force skips the cache read; the fresh result still replaces the entry.
	Force bool `json:"force"`
}

// Market fetches search-grounded prices. Unlike the other orchestrators it
// returns the failure so callers can choose a fallback such as SimulatedMarket.
func (a *Advisor) Market(ctx context.Context, req MarketRequest) (agri.MarketInsight, error) {
	now := a.now()
	return run(ctx, a, flow[agri.MarketInsight]{
		key:      MarketKey(req.Location, req.Crops, req.Language, now),
		ttl:      a.ttl.Market,
		skipRead: req.Force,
		policy:   a.policy,
		call: func(ctx context.Context, credential string) (agri.MarketInsight, error) {
			return a.generateMarket(ctx, credential, req, now)
		},
	})
}

func (a *Advisor) generateMarket(ctx context.Context, credential string, req MarketRequest, now time.Time) (agri.MarketInsight, error) {
	prompt, err := a.prompts.Render(prompts.Market, map[string]any{
		"Date":     now.UTC().Format(time.DateOnly),
		"Time":     now.Format(time.Kitchen),
		"Location": req.Location,
		"Crops":    req.Crops,
		"Language": prompts.LanguageName(req.Language),
	})
	if err != nil {
		return agri.MarketInsight{}, err
	}
	resp, err := a.generator.Generate(ctx, credential, gemini.Request{
		Domain: "market",
		Model:  a.models.Market,
		Prompt: prompt,
		Search: true,
	})
	if err != nil {
		return agri.MarketInsight{}, err
	}

	var insight agri.MarketInsight
	if err := extractJSON(resp.Text, &insight); err != nil {
		return agri.MarketInsight{}, err
	}
	if insight.Prices == nil && strings.TrimSpace(insight.Analysis) == "" {
		return agri.MarketInsight{}, fmt.Errorf("%w: market reply has neither prices nor analysis", ErrMalformedResponse)
	}
	insight.Sources = marketSources(resp.Sources)
	insight.Live = true
	return insight, nil
}

func marketSources(in []gemini.Source) []agri.Source {
	out := make([]agri.Source, 0, min(len(in), maxMarketSources))
	for _, src := range in {
		if src.URI == "" {
			continue
		}
		title := src.Title
		if title == "" {
			title = "Source"
		}
		out = append(out, agri.Source{Title: title, URI: src.URI})
		if len(out) == maxMarketSources {
			break
		}
	}
	return out
}
