package advisor

import "google.golang.org/genai"

func stringProp() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
func numberProp() *genai.Schema { return &genai.Schema{Type: genai.TypeNumber} }

var recommendationsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"cropName":             stringProp(),
			"confidence":           numberProp(),
			"expectedYield":        stringProp(),
			"estimatedProfit":      stringProp(),
			"sustainabilityScore":  numberProp(),
			"sustainabilityReport": stringProp(),
			"advice":               stringProp(),
			"plantingWindow":       stringProp(),
			"suitabilityReasons":   {Type: genai.TypeArray, Items: stringProp()},
		},
		Required: []string{
			"cropName", "confidence", "expectedYield", "estimatedProfit", "sustainabilityScore",
			"sustainabilityReport", "advice", "plantingWindow", "suitabilityReasons",
		},
	},
}

var soilSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"ph":             numberProp(),
		"nitrogen":       numberProp(),
		"phosphorus":     numberProp(),
		"potassium":      numberProp(),
		"organicMatter":  numberProp(),
		"moisture":       numberProp(),
		"soilType":       stringProp(),
		"moistureStatus": stringProp(),
	},
	Required: []string{"ph", "nitrogen", "phosphorus", "potassium", "organicMatter", "moisture", "soilType", "moistureStatus"},
}

var weatherSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"temp":     numberProp(),
		"humidity": numberProp(),
		"rainfall": numberProp(),
		"forecast": stringProp(),
		"dailyForecast": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"date":      stringProp(),
					"tempMax":   numberProp(),
					"tempMin":   numberProp(),
					"condition": stringProp(),
				},
				Required: []string{"date", "tempMax", "tempMin", "condition"},
			},
		},
	},
	Required: []string{"temp", "humidity", "rainfall", "forecast", "dailyForecast"},
}
