// models/weather.go
package models

import "time"

// WeatherTimeLayout is the layout of the time column in merged_weather.csv.
const WeatherTimeLayout = "2006-01-02 15:04:05"

// WeatherObservation is one hourly reading at one airport.
// Time is UTC at hour granularity and, together with Airport, forms the join key.
type WeatherObservation struct {
	Time    time.Time `csv:"-"`
	Airport string    `csv:"airport"`
	Station string    `csv:"station"`

	Temperature   *float64 `csv:"temp"` // °C
	Precipitation *float64 `csv:"prcp"` // mm
	Humidity      *float64 `csv:"rhum"` // %
	WindSpeed     *float64 `csv:"wspd"` // km/h
	Code          *float64 `csv:"coco"` // meteostat condition code
}

// WeatherRow is the csv shape of a WeatherObservation, with the time as text.
type WeatherRow struct {
	Time string `csv:"time"`
	WeatherObservation
}

// Row converts the observation to its csv shape.
func (o WeatherObservation) Row() WeatherRow {
	return WeatherRow{Time: o.Time.UTC().Format(WeatherTimeLayout), WeatherObservation: o}
}

// Observation parses the time column back into a WeatherObservation.
func (r WeatherRow) Observation() (WeatherObservation, error) {
	t, err := time.ParseInLocation(WeatherTimeLayout, r.Time, time.UTC)
	if err != nil {
		return WeatherObservation{}, err
	}
	o := r.WeatherObservation
	o.Time = t
	return o, nil
}
