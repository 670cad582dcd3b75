package rules

import (
	"fmt"

	"github.com/keerthanasaravanan18/college/internal/agri"
)

// Rule pairs a CEL predicate with the crop it recommends.
type Rule struct {
	Name string
	When string
	Crop agri.CropRecommendation
}

type compiledRule struct {
	name    string
	program Program
	crop    agri.CropRecommendation
}

// Table evaluates rules in order and returns up to Limit matches, or the fallback
// crop when nothing matches.
type Table struct {
	rules    []compiledRule
	fallback agri.CropRecommendation
	limit    int
}

// DefaultLimit caps how many crops a table returns.
const DefaultLimit = 3

// NewTable compiles every rule. limit <= 0 selects DefaultLimit.
func NewTable(env *Environment, rules []Rule, fallback agri.CropRecommendation, limit int) (*Table, error) {
	if env == nil {
		var err error
		if env, err = NewEnvironment(); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	table := &Table{fallback: fallback, limit: limit}
	for _, rule := range rules {
		program, err := env.Compile(rule.When)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %q: %w", rule.Name, err)
		}
		table.rules = append(table.rules, compiledRule{name: rule.Name, program: program, crop: rule.Crop})
	}
	return table, nil
}

// DefaultTable compiles the built-in soil-type table.
func DefaultTable() (*Table, error) {
	return NewTable(nil, defaultRules, greenGram, DefaultLimit)
}

// Recommend evaluates the table against one set of readings.
func (t *Table) Recommend(soil agri.SoilData, weather agri.WeatherData, location, history string) ([]agri.CropRecommendation, error) {
	vars := Activation(soil, weather, location, history)
	var out []agri.CropRecommendation
	for _, rule := range t.rules {
		ok, err := rule.program.EvalBool(vars)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %q: %w", rule.name, err)
		}
		if !ok {
			continue
		}
		out = append(out, cloneCrop(rule.crop))
		if len(out) == t.limit {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, cloneCrop(t.fallback))
	}
	return out, nil
}

func cloneCrop(in agri.CropRecommendation) agri.CropRecommendation {
	out := in
	out.SuitabilityReasons = append([]string(nil), in.SuitabilityReasons...)
	return out
}

var greenGram = agri.CropRecommendation{
	CropName:             "Green Gram",
	Confidence:           80,
	ExpectedYield:        "4-6 Quintals/acre",
	EstimatedProfit:      "Quick Return",
	SustainabilityScore:  98,
	SustainabilityReport: "A universal legume that restores soil health regardless of type.",
	Advice:               "Short duration crop (60-70 days) that improves nitrogen content.",
	PlantingWindow:       "Year-round",
	SuitabilityReasons:   []string{"Nitrogen fixing", "Short duration", "Versatile soil adaptation"},
}

var defaultRules = []Rule{
	{
		Name: "black-moist",
		When: `soil.soilType == "Black" && (soil.moistureStatus == "Moist" || soil.moisture > 50.0)`,
		Crop: agri.CropRecommendation{
			CropName:             "Cotton (Bt Variety)",
			Confidence:           92,
			ExpectedYield:        "10-14 Quintals/acre",
			EstimatedProfit:      "High",
			SustainabilityScore:  88,
			SustainabilityReport: "Black soil's high clay content combined with current moisture levels is ideal for cotton taproot development.",
			Advice:               "Monitor for bollworm during the first 60 days. Current moisture is optimal for germination.",
			PlantingWindow:       "July - August",
			SuitabilityReasons:   []string{"Excellent moisture retention", "Ideal Black Soil drainage", "Optimal NPK compatibility"},
		},
	},
	{
		Name: "black-dry",
		When: `soil.soilType == "Black" && !(soil.moistureStatus == "Moist" || soil.moisture > 50.0)`,
		Crop: agri.CropRecommendation{
			CropName:             "Soybean",
			Confidence:           85,
			ExpectedYield:        "8-10 Quintals/acre",
			EstimatedProfit:      "Moderate",
			SustainabilityScore:  92,
			SustainabilityReport: "Soybeans perform well in dry-moist Black soil as they fix nitrogen for the next cycle.",
			Advice:               "Seed treatment with Rhizobium is recommended to boost yields in this soil state.",
			PlantingWindow:       "June - July",
			SuitabilityReasons:   []string{"Drought tolerance", "Nitrogen fixation", "Fits clay soil structure"},
		},
	},
	{
		Name: "red-dry",
		When: `soil.soilType == "Red" && (soil.moistureStatus == "Dry" || soil.moisture < 35.0)`,
		Crop: agri.CropRecommendation{
			CropName:             "Groundnut (Peanut)",
			Confidence:           95,
			ExpectedYield:        "15-20 Quintals/acre",
			EstimatedProfit:      "High",
			SustainabilityScore:  94,
			SustainabilityReport: "Red soil's friable nature allows pods to develop easily even in lower moisture conditions.",
			Advice:               "Ensure Gypsum application at 45 days for better pod filling.",
			PlantingWindow:       "June (Kharif)",
			SuitabilityReasons:   []string{"Easy pod penetration", "High drought resilience", "Matches low moisture profile"},
		},
	},
	{
		Name: "red-moist",
		When: `soil.soilType == "Red" && !(soil.moistureStatus == "Dry" || soil.moisture < 35.0)`,
		Crop: agri.CropRecommendation{
			CropName:             "Maize (Hybrid)",
			Confidence:           88,
			ExpectedYield:        "25-30 Quintals/acre",
			EstimatedProfit:      "Stable",
			SustainabilityScore:  80,
			SustainabilityReport: "Red soil with moisture supports the heavy nutrient and water demand of hybrid maize.",
			Advice:               "High fertilizer requirement; split Nitrogen application into 3 doses.",
			PlantingWindow:       "July - August",
			SuitabilityReasons:   []string{"Efficient drainage", "Supportive root anchorage", "Utilizes available moisture"},
		},
	},
	{
		Name: "alluvial-wet",
		When: `soil.soilType == "Alluvial" && (soil.moistureStatus == "Wet" || soil.moisture > 70.0)`,
		Crop: agri.CropRecommendation{
			CropName:             "Paddy (Rice)",
			Confidence:           98,
			ExpectedYield:        "25-30 Quintals/acre",
			EstimatedProfit:      "Stable",
			SustainabilityScore:  75,
			SustainabilityReport: "Current 'Wet' state and Alluvial nutrients create the perfect environment for SRI paddy cultivation.",
			Advice:               "Focus on water management; maintain 2-5cm standing water level.",
			PlantingWindow:       "Samba Season",
			SuitabilityReasons:   []string{"High nutrient silt", "Flood tolerance", "Matches Alluvial profile"},
		},
	},
	{
		Name: "alluvial-drained",
		When: `soil.soilType == "Alluvial" && !(soil.moistureStatus == "Wet" || soil.moisture > 70.0)`,
		Crop: agri.CropRecommendation{
			CropName:             "Sugarcane",
			Confidence:           82,
			ExpectedYield:        "40-50 Tons/acre",
			EstimatedProfit:      "Long-term High",
			SustainabilityScore:  70,
			SustainabilityReport: "Deep Alluvial soils support the heavy biomass of sugarcane.",
			Advice:               "Use drip irrigation to maintain consistent moisture if 'Wet' status drops.",
			PlantingWindow:       "December - March",
			SuitabilityReasons:   []string{"Deep root system support", "High fertility requirement", "Perennial suitability"},
		},
	},
	{
		Name: "laterite",
		When: `soil.soilType == "Laterite"`,
		Crop: agri.CropRecommendation{
			CropName:             "Cashew Nut",
			Confidence:           90,
			ExpectedYield:        "800-1000 kg/acre",
			EstimatedProfit:      "High",
			SustainabilityScore:  95,
			SustainabilityReport: "Laterite soil's low nutrient status doesn't bother hardy cashew trees.",
			Advice:               "Training and pruning in early years is crucial for high yields.",
			PlantingWindow:       "June - August",
			SuitabilityReasons:   []string{"Acidic tolerance", "Hardy root system", "Low moisture requirement"},
		},
	},
}
