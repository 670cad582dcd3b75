package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keerthanasaravanan18/college/internal/advisor"
	"github.com/keerthanasaravanan18/college/internal/agri"
)

type handlers struct {
	advisor Advisor
	cache   CacheAdmin
	logger  *slog.Logger
}

type recommendationsResponse struct {
	Recommendations []agri.CropRecommendation `json:"recommendations"`
}

type soilRequest struct {
	Location string            `json:"location" validate:"required"`
	Weather  *agri.WeatherData `json:"weather"`
}

type imageRequest struct {
	Crop  string `json:"crop" validate:"required"`
	Force bool   `json:"force"`
}

type removedResponse struct {
	Removed int `json:"removed"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) recommendations(w http.ResponseWriter, r *http.Request) {
	var req advisor.RecommendationRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: h.advisor.Recommendations(r.Context(), req)})
}

func (h *handlers) localRecommendations(w http.ResponseWriter, r *http.Request) {
	var req advisor.RecommendationRequest
	if !decode(w, r, &req) {
		return
	}
	recs, err := h.advisor.LocalRecommendations(req)
	if err != nil {
		h.logger.Error("local rules failed", slog.String("request_id", RequestID(r.Context())), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "local recommendation rules failed")
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: recs})
}

// market serves live prices and falls back to the simulated board when the
// grounded call fails; "live" tells the two apart.
func (h *handlers) market(w http.ResponseWriter, r *http.Request) {
	var req advisor.MarketRequest
	if !decode(w, r, &req) {
		return
	}
	insight, err := h.advisor.Market(r.Context(), req)
	if err != nil {
		h.logger.Warn("live market failed, serving simulated prices",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("location", req.Location),
			slog.Any("error", err),
		)
		insight = h.advisor.SimulatedMarket(req.Location, req.Crops)
	}
	writeJSON(w, http.StatusOK, insight)
}

func (h *handlers) advice(w http.ResponseWriter, r *http.Request) {
	var req advisor.AdviceRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"advice": h.advisor.Advice(r.Context(), req)})
}

func (h *handlers) soil(w http.ResponseWriter, r *http.Request) {
	var req soilRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.advisor.Soil(r.Context(), req.Location, req.Weather))
}

func (h *handlers) weather(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		writeError(w, http.StatusBadRequest, "location query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, h.advisor.Weather(r.Context(), location))
}

func (h *handlers) image(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !decode(w, r, &req) {
		return
	}
	image, ok := h.advisor.CropImage(r.Context(), req.Crop, req.Force)
	if !ok {
		writeError(w, http.StatusNotFound, "no image available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image": image})
}

func (h *handlers) speech(w http.ResponseWriter, r *http.Request) {
	var req advisor.SpeechRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.advisor.Speak(r.Context(), req))
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.ClearAll(r.Context())
	if err != nil {
		h.logger.Error("cache clear failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: removed})
}

func (h *handlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	pattern, err := url.PathUnescape(chi.URLParam(r, "pattern"))
	if err != nil || strings.TrimSpace(pattern) == "" {
		writeError(w, http.StatusBadRequest, "pattern required")
		return
	}
	removed, err := h.cache.InvalidateByPattern(r.Context(), pattern)
	if err != nil {
		h.logger.Error("cache invalidation failed", slog.String("pattern", pattern), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: removed})
}
