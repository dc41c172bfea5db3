// models/flight.go
package models

import "time"

// FlightDateLayout is the layout of FL_DATE in the yearly source files.
const FlightDateLayout = "2006-01-02"

// FlightRecord is one flight leg as it appears in the yearly source files.
// Clock times are HHMM values (e.g. 1512.0 = 15:12 local), delays and elapsed time are minutes.
// csvutil leaves pointer fields nil when the source cell is empty.
type FlightRecord struct {
	FlightDate        string   `csv:"FL_DATE"`
	Carrier           string   `csv:"OP_CARRIER"`
	FlightNumber      string   `csv:"OP_CARRIER_FL_NUM"`
	Origin            string   `csv:"ORIGIN"`
	Dest              string   `csv:"DEST"`
	CRSDepTime        *float64 `csv:"CRS_DEP_TIME"`
	DepTime           *float64 `csv:"DEP_TIME"`
	DepDelay          *float64 `csv:"DEP_DELAY"`
	CRSArrTime        *float64 `csv:"CRS_ARR_TIME"`
	ArrTime           *float64 `csv:"ARR_TIME"`
	ArrDelay          *float64 `csv:"ARR_DELAY"`
	Cancelled         *float64 `csv:"CANCELLED"`
	Diverted          *float64 `csv:"DIVERTED"`
	ActualElapsedTime *float64 `csv:"ACTUAL_ELAPSED_TIME"`
}

// Date parses FL_DATE. Some exports carry a time suffix ("2018-01-01 00:00:00"), only the date part is used.
func (f FlightRecord) Date() (time.Time, error) {
	d := f.FlightDate
	if len(d) > len(FlightDateLayout) {
		d = d[:len(FlightDateLayout)]
	}
	return time.Parse(FlightDateLayout, d)
}

// EnrichedFlight is a FlightRecord with carrier name and the airport attributes of both ends
// attached. Column names follow the enriched artifact (attribute name + _ORIGIN / _DEST).
type EnrichedFlight struct {
	FlightRecord

	CarrierName *string `csv:"OP_CARRIER_NAME"`

	TimeZoneOrigin    *string  `csv:"TIME_ZONE_ORIGIN"`
	TimeZoneDest      *string  `csv:"TIME_ZONE_DEST"`
	CityOrigin        *string  `csv:"CITY_ORIGIN"`
	CityDest          *string  `csv:"CITY_DEST"`
	StateOrigin       *string  `csv:"STATE_ORIGIN"`
	StateDest         *string  `csv:"STATE_DEST"`
	CountryOrigin     *string  `csv:"COUNTRY_ORIGIN"`
	CountryDest       *string  `csv:"COUNTRY_DEST"`
	LongitudeOrigin   *float64 `csv:"LONGITUDE_ORIGIN"`
	LongitudeDest     *float64 `csv:"LONGITUDE_DEST"`
	LatitudeOrigin    *float64 `csv:"LATITUDE_ORIGIN"`
	LatitudeDest      *float64 `csv:"LATITUDE_DEST"`
	AirportNameOrigin *string  `csv:"AIRPORT_NAME_ORIGIN"`
	AirportNameDest   *string  `csv:"AIRPORT_NAME_DEST"`
}

// SetOrigin copies the origin airport attributes. A nil airport leaves every field nil.
func (e *EnrichedFlight) SetOrigin(a *AirportInfo) {
	if a == nil {
		return
	}
	e.TimeZoneOrigin = a.TimeZone
	e.CityOrigin = a.City
	e.StateOrigin = a.State
	e.CountryOrigin = a.Country
	e.LongitudeOrigin = a.Longitude
	e.LatitudeOrigin = a.Latitude
	e.AirportNameOrigin = a.Name
}

// SetDest copies the destination airport attributes.
func (e *EnrichedFlight) SetDest(a *AirportInfo) {
	if a == nil {
		return
	}
	e.TimeZoneDest = a.TimeZone
	e.CityDest = a.City
	e.StateDest = a.State
	e.CountryDest = a.Country
	e.LongitudeDest = a.Longitude
	e.LatitudeDest = a.Latitude
	e.AirportNameDest = a.Name
}

// FlightSummary describes the enriched flight table produced by the loader.
type FlightSummary struct {
	Rows     int
	Dropped  int
	MinDate  time.Time
	MaxDate  time.Time
	Airports []string // distinct origin and destination codes, sorted
}
