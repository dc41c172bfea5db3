package features

import (
	"time"

	"github.com/gewnthar/flightwx/models"
)

type indexKey struct {
	airport string
	hour    int64 // unix seconds
}

// WeatherIndex holds one classified projection per (airport, UTC hour).
type WeatherIndex struct {
	byKey map[indexKey]models.WeatherProjection

	// Duplicates counts observations dropped because their key was already present.
	Duplicates int
}

// NewWeatherIndex indexes obs. The first observation for a key wins.
func NewWeatherIndex(obs []models.WeatherObservation) *WeatherIndex {
	idx := &WeatherIndex{byKey: make(map[indexKey]models.WeatherProjection, len(obs))}
	for _, o := range obs {
		idx.Add(o)
	}
	return idx
}

// Add indexes one observation and reports whether it was kept.
func (idx *WeatherIndex) Add(o models.WeatherObservation) bool {
	k := indexKey{airport: o.Airport, hour: o.Time.UTC().Unix()}
	if _, dup := idx.byKey[k]; dup {
		idx.Duplicates++
		return false
	}
	idx.byKey[k] = Project(o)
	return true
}

func (idx *WeatherIndex) Len() int { return len(idx.byKey) }

// Lookup returns the projection at airport for the exact UTC instant t.
func (idx *WeatherIndex) Lookup(airport string, t *time.Time) (models.WeatherProjection, bool) {
	if t == nil {
		return models.WeatherProjection{}, false
	}
	p, ok := idx.byKey[indexKey{airport: airport, hour: t.UTC().Unix()}]
	return p, ok
}

// Project keeps the output fields of o and adds its condition label.
func Project(o models.WeatherObservation) models.WeatherProjection {
	label := ClassifyWeather(ReadingOf(o))
	return models.WeatherProjection{
		Temperature:   o.Temperature,
		WindSpeed:     o.WindSpeed,
		Humidity:      o.Humidity,
		Precipitation: o.Precipitation,
		Condition:     &label,
	}
}

// JoinStats counts weather matches.
type JoinStats struct {
	Rows          int
	OriginMatches int
	DestMatches   int
}

// Joiner builds output rows. It is not safe for concurrent use.
type Joiner struct {
	index *WeatherIndex
	zones *Zones
	Stats JoinStats
}

func NewJoiner(index *WeatherIndex, zones *Zones) *Joiner {
	if index == nil {
		index = NewWeatherIndex(nil)
	}
	if zones == nil {
		zones = NewZones()
	}
	return &Joiner{index: index, zones: zones}
}

// Join derives features for f and attaches origin weather at the departure hour and
// destination weather at the arrival hour. Every flight yields exactly one row;
// sides without a match keep nil weather columns.
func (j *Joiner) Join(f models.EnrichedFlight) models.JoinedRecord {
	f.TimeZoneOrigin = NormalizeTimeZone(f.TimeZoneOrigin)
	f.TimeZoneDest = NormalizeTimeZone(f.TimeZoneDest)
	times := j.zones.Times(f)

	r := models.JoinedRecord{
		FlightDate:        f.FlightDate,
		Origin:            f.Origin,
		Dest:              f.Dest,
		Carrier:           f.Carrier,
		FlightNumber:      f.FlightNumber,
		CarrierName:       f.CarrierName,
		AirportNameOrigin: f.AirportNameOrigin,
		AirportNameDest:   f.AirportNameDest,
		CRSDepTime:        f.CRSDepTime,
		DepTime:           f.DepTime,
		DepDelay:          f.DepDelay,
		DepDelayCategory:  DelayCategory(f.DepDelay, Departure),
		Cancelled:         f.Cancelled,
		Diverted:          f.Diverted,
		CityOrigin:        f.CityOrigin,
		StateOrigin:       f.StateOrigin,
		CountryOrigin:     f.CountryOrigin,
		LongitudeOrigin:   f.LongitudeOrigin,
		LatitudeOrigin:    f.LatitudeOrigin,
		TimeZoneDest:      f.TimeZoneDest,
		TimeZoneOrigin:    f.TimeZoneOrigin,
		DepTimeLocal:      models.NewTimestamp(times.DepLocal),
		DepTimeUTC:        models.NewTimestamp(times.DepUTC),
		ArrTimeLocal:      models.NewTimestamp(times.ArrLocal),
		ArrTimeUTC:        models.NewTimestamp(times.ArrUTC),
		ArrTime:           f.ArrTime,
		ArrDelay:          f.ArrDelay,
		ArrDelayCategory:  DelayCategory(f.ArrDelay, Arrival),
		CityDest:          f.CityDest,
		StateDest:         f.StateDest,
		CountryDest:       f.CountryDest,
		LongitudeDest:     f.LongitudeDest,
		LatitudeDest:      f.LatitudeDest,
	}

	if w, ok := j.index.Lookup(f.Origin, times.DepUTC); ok {
		r.SetOriginWeather(w)
		j.Stats.OriginMatches++
	}
	if w, ok := j.index.Lookup(f.Dest, times.ArrUTC); ok {
		r.SetDestWeather(w)
		j.Stats.DestMatches++
	}
	j.Stats.Rows++
	return r
}
