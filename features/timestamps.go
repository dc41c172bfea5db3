// Package features derives timestamps, delay categories and weather conditions
// and joins flights to hourly weather. Everything here is pure.
package features

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gewnthar/flightwx/models"
)

// Zones caches loaded time zones by IANA name.
type Zones struct {
	mu   sync.Mutex
	locs map[string]*time.Location
}

func NewZones() *Zones {
	return &Zones{locs: make(map[string]*time.Location)}
}

// Load returns the location named by name, or nil when the name is nil, empty,
// "Unknown" or not a zone the system knows.
func (z *Zones) Load(name *string) *time.Location {
	if name == nil {
		return nil
	}
	n := strings.TrimSpace(*name)
	if n == "" || strings.EqualFold(n, "Unknown") {
		return nil
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if loc, ok := z.locs[n]; ok {
		return loc
	}
	loc, err := time.LoadLocation(n)
	if err != nil {
		loc = nil
	}
	z.locs[n] = loc
	return loc
}

// NormalizeTimeZone maps the "Unknown" placeholder to nil.
func NormalizeTimeZone(tz *string) *string {
	if tz == nil || strings.EqualFold(strings.TrimSpace(*tz), "Unknown") || strings.TrimSpace(*tz) == "" {
		return nil
	}
	return tz
}

// DepartureClock returns the actual departure HHMM, or the scheduled one when the
// actual time is missing.
func DepartureClock(f models.FlightRecord) *float64 {
	if f.DepTime != nil {
		return f.DepTime
	}
	return f.CRSDepTime
}

// LocalDeparture truncates an HHMM clock value to the hour on flightDate, as a
// wall-clock time in loc. 2400 becomes midnight of the following day.
func LocalDeparture(flightDate time.Time, hhmm float64, loc *time.Location) time.Time {
	hour := int(math.Floor(hhmm / 100))
	return time.Date(flightDate.Year(), flightDate.Month(), flightDate.Day(), hour, 0, 0, 0, loc)
}

// ArrivalUTC is the departure plus the elapsed time rounded to whole hours.
func ArrivalUTC(depUTC time.Time, elapsedMinutes float64) time.Time {
	return depUTC.Add(time.Duration(math.Round(elapsedMinutes/60)) * time.Hour)
}

// FlightTimes are the derived timestamps of one flight. Any of them may be nil.
type FlightTimes struct {
	DepLocal *time.Time
	DepUTC   *time.Time
	ArrLocal *time.Time
	ArrUTC   *time.Time
}

// Times derives the timestamps of f. The local departure is kept as a wall-clock
// time even when the origin zone is unknown; everything zone-dependent is then nil.
func (z *Zones) Times(f models.EnrichedFlight) FlightTimes {
	var out FlightTimes
	clock := DepartureClock(f.FlightRecord)
	if clock == nil {
		return out
	}
	date, err := f.Date()
	if err != nil {
		return out
	}

	wall := LocalDeparture(date, *clock, time.UTC)
	out.DepLocal = &wall

	origin := z.Load(f.TimeZoneOrigin)
	if origin == nil {
		return out
	}
	depUTC := LocalDeparture(date, *clock, origin).UTC()
	out.DepUTC = &depUTC

	if f.ActualElapsedTime == nil {
		return out
	}
	arrUTC := ArrivalUTC(depUTC, *f.ActualElapsedTime)
	out.ArrUTC = &arrUTC

	if dest := z.Load(f.TimeZoneDest); dest != nil {
		arrLocal := arrUTC.In(dest)
		out.ArrLocal = &arrLocal
	}
	return out
}
