// models/joined.go
package models

import "time"

// TimestampLayout is how derived timestamps are written to tabular artifacts.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a wall-clock instant. Local timestamps keep their airport location,
// UTC ones are in time.UTC; both are written without an offset.
type Timestamp struct {
	time.Time
}

// MarshalCSV implements csvutil.Marshaler.
func (t Timestamp) MarshalCSV() ([]byte, error) {
	return []byte(t.Format(TimestampLayout)), nil
}

// NewTimestamp wraps t, nil-safe.
func NewTimestamp(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	return &Timestamp{Time: *t}
}

// WeatherProjection is the subset of an observation carried into the output, per side.
type WeatherProjection struct {
	Temperature   *float64
	WindSpeed     *float64
	Humidity      *float64
	Precipitation *float64
	Condition     *string
}

// JoinedRecord is one output row. Field order is the output column order.
type JoinedRecord struct {
	FlightDate        string     `csv:"FL_DATE"`
	Origin            string     `csv:"ORIGIN"`
	Dest              string     `csv:"DEST"`
	Carrier           string     `csv:"OP_CARRIER"`
	FlightNumber      string     `csv:"OP_CARRIER_FL_NUM"`
	CarrierName       *string    `csv:"OP_CARRIER_NAME"`
	AirportNameOrigin *string    `csv:"AIRPORT_NAME_ORIGIN"`
	AirportNameDest   *string    `csv:"AIRPORT_NAME_DEST"`
	CRSDepTime        *float64   `csv:"CRS_DEP_TIME"`
	DepTime           *float64   `csv:"DEP_TIME"`
	DepDelay          *float64   `csv:"DEP_DELAY"`
	DepDelayCategory  *string    `csv:"DEP_DELAY_CATEGORY"`
	Cancelled         *float64   `csv:"CANCELLED"`
	Diverted          *float64   `csv:"DIVERTED"`
	CityOrigin        *string    `csv:"CITY_ORIGIN"`
	StateOrigin       *string    `csv:"STATE_ORIGIN"`
	CountryOrigin     *string    `csv:"COUNTRY_ORIGIN"`
	LongitudeOrigin   *float64   `csv:"LONGITUDE_ORIGIN"`
	LatitudeOrigin    *float64   `csv:"LATITUDE_ORIGIN"`
	TimeZoneDest      *string    `csv:"TIME_ZONE_DEST"`
	TimeZoneOrigin    *string    `csv:"TIME_ZONE_ORIGIN"`
	DepTimeLocal      *Timestamp `csv:"DEP_TIME_LOCAL"`
	DepTimeUTC        *Timestamp `csv:"DEP_TIME_UTC"`
	ArrTimeLocal      *Timestamp `csv:"ARR_TIME_LOCAL"`
	ArrTimeUTC        *Timestamp `csv:"ARR_TIME_UTC"`
	ArrTime           *float64   `csv:"ARR_TIME"`
	ArrDelay          *float64   `csv:"ARR_DELAY"`
	ArrDelayCategory  *string    `csv:"ARR_DELAY_CATEGORY"`
	CityDest          *string    `csv:"CITY_DEST"`
	StateDest         *string    `csv:"STATE_DEST"`
	CountryDest       *string    `csv:"COUNTRY_DEST"`
	LongitudeDest     *float64   `csv:"LONGITUDE_DEST"`
	LatitudeDest      *float64   `csv:"LATITUDE_DEST"`

	OriginTemperature   *float64 `csv:"ORIGIN_TEMPERATURE_DEG_C"`
	OriginWindSpeed     *float64 `csv:"ORIGIN_WIND_SPEED_KM_PER_HR"`
	OriginHumidity      *float64 `csv:"ORIGIN_RELATIVE_HUMIDITY"`
	OriginPrecipitation *float64 `csv:"ORIGIN_PRECIPITATION"`
	OriginCondition     *string  `csv:"ORIGIN_WEATHER_CONDITION"`
	DestTemperature     *float64 `csv:"DEST_TEMPERATURE_DEG_C"`
	DestWindSpeed       *float64 `csv:"DEST_WIND_SPEED_KM_PER_HR"`
	DestHumidity        *float64 `csv:"DEST_RELATIVE_HUMIDITY"`
	DestPrecipitation   *float64 `csv:"DEST_PRECIPITATION"`
	DestCondition       *string  `csv:"DEST_WEATHER_CONDITION"`
}

// SetOriginWeather copies the origin-side projection.
func (r *JoinedRecord) SetOriginWeather(w WeatherProjection) {
	r.OriginTemperature = w.Temperature
	r.OriginWindSpeed = w.WindSpeed
	r.OriginHumidity = w.Humidity
	r.OriginPrecipitation = w.Precipitation
	r.OriginCondition = w.Condition
}

// SetDestWeather copies the destination-side projection.
func (r *JoinedRecord) SetDestWeather(w WeatherProjection) {
	r.DestTemperature = w.Temperature
	r.DestWindSpeed = w.WindSpeed
	r.DestHumidity = w.Humidity
	r.DestPrecipitation = w.Precipitation
	r.DestCondition = w.Condition
}
