package features

import "github.com/gewnthar/flightwx/models"

// Reading is the input of the weather classifier. Missing values are nil.
type Reading struct {
	Precipitation *float64 // mm
	Temperature   *float64 // °C
	Humidity      *float64 // %
	WindSpeed     *float64 // km/h
	Code          *float64
}

// ReadingOf extracts the classifier input from an observation.
func ReadingOf(o models.WeatherObservation) Reading {
	return Reading{
		Precipitation: o.Precipitation,
		Temperature:   o.Temperature,
		Humidity:      o.Humidity,
		WindSpeed:     o.WindSpeed,
		Code:          o.Code,
	}
}

// Rule is one guarded case of the classifier.
type Rule struct {
	Label string
	Match func(Reading) bool
}

const Unknown = "Unknown"

// A comparison against a missing value is false, so a reading with gaps falls
// through to the rules that do not need the missing field, or to Unknown.
func eq(v *float64, x float64) bool           { return v != nil && *v == x }
func lt(v *float64, x float64) bool           { return v != nil && *v < x }
func gt(v *float64, x float64) bool           { return v != nil && *v > x }
func le(v *float64, x float64) bool           { return v != nil && *v <= x }
func between(v *float64, lo, hi float64) bool { return v != nil && *v >= lo && *v <= hi }

// Rules are evaluated in order and the first match wins.
var Rules = []Rule{
	{"Clear", func(r Reading) bool {
		return eq(r.Precipitation, 0) && between(r.Temperature, -2, 35) && lt(r.Humidity, 50) && lt(r.WindSpeed, 20)
	}},
	{"Partly Cloudy", func(r Reading) bool {
		return eq(r.Precipitation, 0) && between(r.Temperature, -10, 45) && between(r.Humidity, 50, 75) && lt(r.WindSpeed, 30)
	}},
	{"Cloudy", func(r Reading) bool {
		return eq(r.Precipitation, 0) && between(r.Temperature, -10, 45) && gt(r.Humidity, 75)
	}},
	{"Light Rain", func(r Reading) bool {
		return gt(r.Precipitation, 0.01) && le(r.Precipitation, 10) && between(r.Temperature, 2, 45) &&
			gt(r.Humidity, 55) && lt(r.WindSpeed, 25)
	}},
	{"Heavy Rain", func(r Reading) bool {
		return gt(r.Precipitation, 10) && between(r.Temperature, 2, 45) && gt(r.Humidity, 65) && lt(r.WindSpeed, 25)
	}},
	{"Snow", func(r Reading) bool {
		return gt(r.Precipitation, 0.05) && between(r.Temperature, -20, 2) && gt(r.Humidity, 55)
	}},
	{"Heavy Snow", func(r Reading) bool {
		return gt(r.Precipitation, 2) && between(r.Temperature, -30, 2) && gt(r.Humidity, 60)
	}},
	{"Windy Rain", func(r Reading) bool {
		return between(r.WindSpeed, 25, 35) && gt(r.Precipitation, 1) && gt(r.Humidity, 55)
	}},
	{"Stormy", func(r Reading) bool {
		return between(r.WindSpeed, 35, 40) && gt(r.Temperature, -5) && gt(r.Precipitation, 2) && gt(r.Humidity, 60)
	}},
	{"Blizzard", func(r Reading) bool {
		return lt(r.Temperature, -5) && between(r.WindSpeed, 40, 50) && gt(r.Precipitation, 2) && gt(r.Humidity, 60)
	}},
	{"Severe Storm", func(r Reading) bool {
		return gt(r.WindSpeed, 50) && gt(r.Precipitation, 5) && gt(r.Humidity, 70)
	}},
	{"Hot and Dry", func(r Reading) bool {
		return gt(r.Temperature, 35) && lt(r.Humidity, 30) && lt(r.WindSpeed, 20)
	}},
	{"Extreme Cold", func(r Reading) bool {
		return lt(r.Temperature, -15) && lt(r.WindSpeed, 20)
	}},
}

// codeConditions maps condition codes to labels.
var codeConditions = map[float64]string{
	1: "Clear", 2: "Clear",
	3: "Cloudy", 4: "Cloudy", 5: "Cloudy", 6: "Cloudy",
	7: "Light Rain", 8: "Light Rain", 17: "Light Rain",
	9: "Heavy Rain", 10: "Heavy Rain", 11: "Heavy Rain", 18: "Heavy Rain",
	12: "Snow", 14: "Snow", 15: "Snow", 19: "Snow", 21: "Snow", 24: "Snow",
	13: "Heavy Snow", 16: "Heavy Snow", 20: "Heavy Snow", 22: "Heavy Snow",
	23: "Stormy", 25: "Stormy", 27: "Stormy",
	26: "Severe Storm",
}

// ClassifyReading runs the rules and returns the first matching label, or Unknown.
func ClassifyReading(r Reading) string {
	for _, rule := range Rules {
		if rule.Match(r) {
			return rule.Label
		}
	}
	return Unknown
}

// CodeCondition returns the label for a condition code, if the code is in the table.
func CodeCondition(code float64) (string, bool) {
	label, ok := codeConditions[code]
	return label, ok
}

// ClassifyWeather is the two-stage classification: a known condition code wins
// over the rule-based label.
func ClassifyWeather(r Reading) string {
	if r.Code != nil {
		if label, ok := CodeCondition(*r.Code); ok {
			return label
		}
	}
	return ClassifyReading(r)
}
