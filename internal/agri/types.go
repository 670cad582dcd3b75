// Package agri holds the agronomy data shapes exchanged with the AI backend, the
// cache and HTTP clients.
package agri

// SoilData describes a field's soil profile. Moisture is a percentage.
type SoilData struct {
	PH             float64 `json:"ph" validate:"gte=0,lte=14"`
	Nitrogen       float64 `json:"nitrogen" validate:"gte=0"`
	Phosphorus     float64 `json:"phosphorus" validate:"gte=0"`
	Potassium      float64 `json:"potassium" validate:"gte=0"`
	OrganicMatter  float64 `json:"organicMatter" validate:"gte=0"`
	Moisture       float64 `json:"moisture" validate:"gte=0,lte=100"`
	SoilType       string  `json:"soilType" validate:"required"`
	MoistureStatus string  `json:"moistureStatus"`
}

// DailyForecast is one day of the five-day outlook.
type DailyForecast struct {
	Date      string  `json:"date"`
	TempMax   float64 `json:"tempMax"`
	TempMin   float64 `json:"tempMin"`
	Condition string  `json:"condition"`
}

// WeatherData is the current conditions plus an optional outlook.
type WeatherData struct {
	Temp          float64         `json:"temp"`
	Humidity      float64         `json:"humidity"`
	Rainfall      float64         `json:"rainfall"`
	Forecast      string          `json:"forecast"`
	DailyForecast []DailyForecast `json:"dailyForecast,omitempty"`
}

// CropRecommendation is one suggested crop with its rationale.
type CropRecommendation struct {
	CropName             string   `json:"cropName"`
	Confidence           float64  `json:"confidence"`
	ExpectedYield        string   `json:"expectedYield"`
	EstimatedProfit      string   `json:"estimatedProfit"`
	SustainabilityScore  float64  `json:"sustainabilityScore"`
	SustainabilityReport string   `json:"sustainabilityReport"`
	Advice               string   `json:"advice"`
	PlantingWindow       string   `json:"plantingWindow"`
	SuitabilityReasons   []string `json:"suitabilityReasons"`
}

// Trend values reported for a commodity.
const (
	TrendUp     = "Up"
	TrendDown   = "Down"
	TrendStable = "Stable"
)

// MarketPrice is a mandi (wholesale market) quote. Prices are display strings such as "₹2300".
type MarketPrice struct {
	Commodity   string `json:"commodity"`
	Mandi       string `json:"mandi"`
	MinPrice    string `json:"minPrice"`
	MaxPrice    string `json:"maxPrice"`
	ModalPrice  string `json:"modalPrice"`
	RetailPrice string `json:"retailPrice,omitempty"`
	Trend       string `json:"trend"`
	LastUpdated string `json:"lastUpdated,omitempty"`
	Reliability string `json:"reliability,omitempty"`
	SourceName  string `json:"sourceName,omitempty"`
	History     []int  `json:"history,omitempty"`
}

// Source attributes market data to a web page found by search grounding.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// MarketInsight bundles price quotes with an analysis and their provenance.
type MarketInsight struct {
	Analysis    string        `json:"analysis"`
	Prices      []MarketPrice `json:"prices"`
	LastUpdated string        `json:"lastUpdated,omitempty"`
	Sources     []Source      `json:"sources,omitempty"`
	Live        bool          `json:"live"`
}
