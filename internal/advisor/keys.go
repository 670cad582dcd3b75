package advisor

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/weather"
)

// Key prefixes carry the payload schema version; bump one when its shape changes.
const (
	recommendationsKeyPrefix = "recs-v6-"
	marketKeyPrefix          = "live-market-v6-"
	adviceKeyPrefix          = "advice-v4-"
	soilKeyPrefix            = "soil-v3-"
	weatherKeyPrefix         = "weather-v4-"
	imageKeyPrefix           = "img-v2-"
)

const forecastKeyRunes = 15

var (
	keyPunctuation = strings.NewReplacer(`"`, "", "{", "", "}", "", ":", "")
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

type recommendationsKeyFields struct {
	Location string `json:"loc"`
	Soil     string `json:"soil"`
	History  string `json:"hist"`
	Weather  string `json:"weath"`
	Language string `json:"lng"`
}

// RecommendationsKey serializes the inputs that shape a recommendation. Soil
// readings are kept exact; temperature is rounded and the forecast truncated.
func RecommendationsKey(req RecommendationRequest) string {
	fields := recommendationsKeyFields{
		Location: req.Location,
		Soil:     req.Soil.SoilType + "-" + formatNumber(req.Soil.PH) + "-" + formatNumber(req.Soil.Moisture),
		History:  req.History,
		Weather:  weatherBucket(req.Weather),
		Language: req.Language,
	}
	raw, err := json.MarshalNoEscape(fields)
	if err != nil {
		// Plain strings always marshal; keep a usable key regardless.
		raw = []byte(fields.Location + "," + fields.Soil + "," + fields.History + "," + fields.Weather + "," + fields.Language)
	}
	return recommendationsKeyPrefix + keyPunctuation.Replace(string(raw))
}

// MarketKey buckets market data by calendar day (UTC).
func MarketKey(location string, crops []string, lang string, now time.Time) string {
	return marketKeyPrefix + location + "-" + strings.Join(crops, "-") + "-" + lang + "-" + now.UTC().Format(time.DateOnly)
}

// AdviceKey includes a weather bucket so a changed outlook yields fresh advice.
func AdviceKey(location string, wx agri.WeatherData, lang string) string {
	return adviceKeyPrefix + location + "-" + lang + "-" + weatherBucket(wx)
}

func SoilKey(location string) string {
	return soilKeyPrefix + location
}

func WeatherKey(location string) string {
	return weatherKeyPrefix + strings.ToLower(weather.City(location))
}

// ImageKey uses the crop name before any parenthesized variety, hyphenated.
func ImageKey(crop string) string {
	return imageKeyPrefix + whitespaceRun.ReplaceAllString(strings.ToLower(cleanCropName(crop)), "-")
}

func cleanCropName(crop string) string {
	name, _, _ := strings.Cut(crop, "(")
	return strings.TrimSpace(name)
}

func weatherBucket(wx agri.WeatherData) string {
	forecast := wx.Forecast
	if forecast == "" {
		forecast = "Stable"
	}
	if runes := []rune(forecast); len(runes) > forecastKeyRunes {
		forecast = string(runes[:forecastKeyRunes])
	}
	return strconv.Itoa(int(math.Round(wx.Temp))) + "-" + forecast
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
